package tracing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/snackhouse/delivery/config"
)

func TestDisabledTracerIsSafeToUse(t *testing.T) {
	tracer := Disabled()
	require.NotNil(t, tracer)

	// Every method must be a no-op, including on the nil transaction
	// StartTransaction hands back when tracing is off.
	txn := tracer.StartTransaction("create-delivery")
	require.Nil(t, txn)

	require.NotPanics(t, func() {
		segment := tracer.StartSpan("persist", txn)
		require.NotNil(t, segment)
		tracer.AddAttribute(txn, "delivery_id", uint(1))
		tracer.RecordError(txn, errors.New("boom"))
		tracer.EndTransaction(txn)
		tracer.Close()
	})
}

func TestNewTracerWithoutLicenseKeyIsDisabled(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.Nil(t, tracer.StartTransaction("anything"))
}
