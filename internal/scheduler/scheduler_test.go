package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/metrics"
	"example.com/snackhouse/delivery/internal/models"
)

// Mock delivery store for testing
type MockDeliveryStore struct {
	mock.Mock
}

func (m *MockDeliveryStore) ListScheduled(ctx context.Context) ([]models.Delivery, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Delivery), args.Error(1)
}

func (m *MockDeliveryStore) MarkFlagged(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Fake announcer that signals each announcement on a channel
type fakeAnnouncer struct {
	calls chan string
	err   error
}

func newFakeAnnouncer() *fakeAnnouncer {
	return &fakeAnnouncer{calls: make(chan string, 10)}
}

func (f *fakeAnnouncer) Announce(ctx context.Context, text string) error {
	f.calls <- text
	return f.err
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		GraceWindow:     2 * time.Hour,
		SweepInterval:   5 * time.Minute,
		DefaultLeadTime: 30 * time.Minute,
		MinAdvance:      5 * time.Minute,
	}
}

// deliveryAt builds a scheduled delivery for the given wall clock time.
func deliveryAt(id uint, at time.Time, leadMinutes int) models.Delivery {
	return models.Delivery{
		ID:              id,
		Date:            at.Format("2006-01-02"),
		TimeOfDay:       at.Format("15:04"),
		Description:     "marmitas para a dona Clara",
		LeadTimeMinutes: leadMinutes,
		Status:          models.StatusScheduled,
	}
}

func TestScheduleCreatesPendingEntry(t *testing.T) {
	s := New(testConfig(), new(MockDeliveryStore), newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	ok := s.Schedule(deliveryAt(1, time.Now().Add(3*time.Hour), 30))

	require.True(t, ok)
	require.True(t, s.HasPending(1))
	require.Equal(t, 1, s.PendingCount())
}

func TestSchedulePastAlertTimeIsSkipped(t *testing.T) {
	s := New(testConfig(), new(MockDeliveryStore), newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	// Delivery is an hour out but the 90-minute lead puts the alert in
	// the past.
	ok := s.Schedule(deliveryAt(1, time.Now().Add(time.Hour), 90))

	require.False(t, ok)
	require.False(t, s.HasPending(1))
	require.Equal(t, 0, s.PendingCount())
}

func TestScheduleInvalidDateIsSkipped(t *testing.T) {
	s := New(testConfig(), new(MockDeliveryStore), newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	delivery := models.Delivery{ID: 1, Date: "not-a-date", TimeOfDay: "18:00", LeadTimeMinutes: 30}

	require.False(t, s.Schedule(delivery))
	require.Equal(t, 0, s.PendingCount())
}

func TestScheduleReplacesExistingEntry(t *testing.T) {
	s := New(testConfig(), new(MockDeliveryStore), newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	require.True(t, s.Schedule(deliveryAt(1, time.Now().Add(3*time.Hour), 30)))
	require.True(t, s.Schedule(deliveryAt(1, time.Now().Add(4*time.Hour), 30)))

	require.Equal(t, 1, s.PendingCount())
}

// Announcer that parks inside Announce until released, so a fire can be
// held in flight while the test mutates the schedule.
type blockingAnnouncer struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingAnnouncer() *blockingAnnouncer {
	return &blockingAnnouncer{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
}

func (b *blockingAnnouncer) Announce(ctx context.Context, text string) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestScheduleDuringFireKeepsReplacementEntry(t *testing.T) {
	announcer := newBlockingAnnouncer()
	s := New(testConfig(), new(MockDeliveryStore), announcer, metrics.NewMetrics())
	defer s.Stop()

	first := deliveryAt(1, time.Now().Add(time.Hour), 30)
	at, err := first.ScheduledAt()
	require.NoError(t, err)

	s.now = func() time.Time { return at.Add(-30 * time.Minute).Add(-20 * time.Millisecond) }
	require.True(t, s.Schedule(first))

	// Hold the first reminder mid-send, then register a replacement for
	// the same delivery before letting it finish.
	<-announcer.started

	replacement := deliveryAt(1, time.Now().Add(2*time.Hour), 30)
	at, err = replacement.ScheduledAt()
	require.NoError(t, err)
	s.now = func() time.Time { return at.Add(-30 * time.Minute).Add(-300 * time.Millisecond) }
	require.True(t, s.Schedule(replacement))

	close(announcer.release)

	// The finished send cleans up after itself; the replacement's entry
	// must survive so it stays cancelable.
	time.Sleep(50 * time.Millisecond)
	require.True(t, s.HasPending(1))

	s.Cancel(1)
	require.False(t, s.HasPending(1))

	select {
	case <-announcer.started:
		t.Fatal("cancelled reminder fired anyway")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := New(testConfig(), new(MockDeliveryStore), newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	require.True(t, s.Schedule(deliveryAt(1, time.Now().Add(3*time.Hour), 30)))

	s.Cancel(1)
	require.False(t, s.HasPending(1))

	// Cancelling again, or an id that never existed, must not panic.
	s.Cancel(1)
	s.Cancel(99)
	require.Equal(t, 0, s.PendingCount())
}

func TestFireAnnouncesAndRemovesEntry(t *testing.T) {
	announcer := newFakeAnnouncer()
	s := New(testConfig(), new(MockDeliveryStore), announcer, metrics.NewMetrics())
	defer s.Stop()

	delivery := deliveryAt(7, time.Now().Add(time.Hour), 30)
	at, err := delivery.ScheduledAt()
	require.NoError(t, err)

	// Pin the clock just before the alert so the timer fires immediately.
	alertTime := at.Add(-30 * time.Minute)
	s.now = func() time.Time { return alertTime.Add(-20 * time.Millisecond) }

	require.True(t, s.Schedule(delivery))

	select {
	case text := <-announcer.calls:
		require.Contains(t, text, "30")
		require.Contains(t, text, delivery.Description)
	case <-time.After(2 * time.Second):
		t.Fatal("reminder never fired")
	}

	require.Eventually(t, func() bool {
		return !s.HasPending(7)
	}, 2*time.Second, 10*time.Millisecond)

	rates := s.metrics.GetErrorRates()
	require.Equal(t, int64(1), rates["reminder_send"].Total)
	require.Equal(t, int64(0), rates["reminder_send"].Errors)
}

func TestFailedAnnouncementStillRemovesEntry(t *testing.T) {
	announcer := newFakeAnnouncer()
	announcer.err = errors.New("device unreachable")
	s := New(testConfig(), new(MockDeliveryStore), announcer, metrics.NewMetrics())
	defer s.Stop()

	delivery := deliveryAt(3, time.Now().Add(time.Hour), 30)
	at, err := delivery.ScheduledAt()
	require.NoError(t, err)

	alertTime := at.Add(-30 * time.Minute)
	s.now = func() time.Time { return alertTime.Add(-20 * time.Millisecond) }

	require.True(t, s.Schedule(delivery))

	<-announcer.calls

	require.Eventually(t, func() bool {
		return !s.HasPending(3)
	}, 2*time.Second, 10*time.Millisecond)

	rates := s.metrics.GetErrorRates()
	require.Equal(t, int64(1), rates["reminder_send"].Total)
	require.Equal(t, int64(1), rates["reminder_send"].Errors)
}

func TestRescheduleAllPending(t *testing.T) {
	store := new(MockDeliveryStore)
	now := time.Now()
	store.On("ListScheduled", mock.Anything).Return([]models.Delivery{
		deliveryAt(1, now.Add(3*time.Hour), 30),
		deliveryAt(2, now.Add(-3*time.Hour), 30),
		{ID: 3, Date: "garbage", TimeOfDay: "18:00", LeadTimeMinutes: 30},
	}, nil)

	s := New(testConfig(), store, newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	require.NoError(t, s.RescheduleAllPending(context.Background()))

	require.True(t, s.HasPending(1))
	require.False(t, s.HasPending(2))
	require.False(t, s.HasPending(3))
	require.Equal(t, 1, s.PendingCount())

	store.AssertExpectations(t)
}

func TestReconcileFlagsOnlyOverdueDeliveries(t *testing.T) {
	store := new(MockDeliveryStore)
	now := time.Now()
	overdue := deliveryAt(10, now.Add(-3*time.Hour), 30)
	recent := deliveryAt(11, now.Add(-time.Hour), 30)
	upcoming := deliveryAt(12, now.Add(3*time.Hour), 30)

	store.On("ListScheduled", mock.Anything).Return([]models.Delivery{overdue, recent, upcoming}, nil)
	store.On("MarkFlagged", mock.Anything, uint(10)).Return(nil)

	s := New(testConfig(), store, newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	require.NoError(t, s.Reconcile(context.Background()))

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkFlagged", mock.Anything, uint(11))
	store.AssertNotCalled(t, "MarkFlagged", mock.Anything, uint(12))
}

func TestReconcileDropsFlaggedReminderEntry(t *testing.T) {
	store := new(MockDeliveryStore)
	now := time.Now()
	overdue := deliveryAt(20, now.Add(-3*time.Hour), 30)

	store.On("ListScheduled", mock.Anything).Return([]models.Delivery{overdue}, nil)
	store.On("MarkFlagged", mock.Anything, uint(20)).Return(nil)

	s := New(testConfig(), store, newFakeAnnouncer(), metrics.NewMetrics())
	defer s.Stop()

	// Simulate a stale entry left behind for the overdue delivery.
	s.mu.Lock()
	s.pending[20] = &reminder{timer: time.NewTimer(time.Hour)}
	s.mu.Unlock()

	require.NoError(t, s.Reconcile(context.Background()))
	require.False(t, s.HasPending(20))
}

func TestStopRefusesFurtherScheduling(t *testing.T) {
	s := New(testConfig(), new(MockDeliveryStore), newFakeAnnouncer(), metrics.NewMetrics())

	require.True(t, s.Schedule(deliveryAt(1, time.Now().Add(3*time.Hour), 30)))
	s.Stop()

	require.Equal(t, 0, s.PendingCount())
	require.False(t, s.Schedule(deliveryAt(2, time.Now().Add(3*time.Hour), 30)))
}
