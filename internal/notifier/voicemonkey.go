package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Errors surfaced to callers that trigger a send synchronously.
var (
	// ErrNotConfigured means no credential has been saved yet.
	ErrNotConfigured = errors.New("voice notifier is not configured")
	// ErrMalformedCredential means the stored credential is not a
	// "token:device" pair.
	ErrMalformedCredential = errors.New("invalid credential, expected format TOKEN:DEVICE_ID")
)

// Announcer delivers a spoken-text announcement to the operator's voice
// device.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// VoiceMonkeyClient sends announcements through the Voice Monkey HTTP
// API. The credential is read from persistence on every call, so a
// reconfiguration takes effect for the next send without a restart.
type VoiceMonkeyClient struct {
	cfg        config.NotifierConfig
	creds      repositories.CredentialRepository
	httpClient *http.Client
}

// NewVoiceMonkeyClient creates a new announcement client
func NewVoiceMonkeyClient(cfg config.NotifierConfig, creds repositories.CredentialRepository) *VoiceMonkeyClient {
	return &VoiceMonkeyClient{
		cfg:   cfg,
		creds: creds,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Announce sends the given text to the configured voice device. Success
// is any 2xx response; the response body is not inspected.
func (c *VoiceMonkeyClient) Announce(ctx context.Context, text string) error {
	token, device, err := c.credential(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("token", token)
	params.Set("device", device)
	params.Set("text", text)
	params.Set("voice", c.cfg.Voice)
	params.Set("language", c.cfg.Language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AnnouncementURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build announcement request")
	}

	log.Info().Str("text", text).Msg("Sending voice announcement")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "announcement request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("announcement rejected with status %d", resp.StatusCode)
	}

	return nil
}

// Configured reports whether a credential is currently stored.
func (c *VoiceMonkeyClient) Configured(ctx context.Context) bool {
	_, _, err := c.credential(ctx)
	return err == nil
}

func (c *VoiceMonkeyClient) credential(ctx context.Context) (token, device string, err error) {
	cred, err := c.creds.Get(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", "", ErrNotConfigured
		}
		return "", "", errors.Wrap(err, "failed to load credential")
	}
	if cred.AccessToken == "" {
		return "", "", ErrNotConfigured
	}

	parts := strings.SplitN(cred.AccessToken, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformedCredential
	}

	return parts[0], parts[1], nil
}

// ReminderText builds the spoken reminder for an upcoming delivery.
func ReminderText(leadTimeMinutes int, description string) string {
	return fmt.Sprintf("Atenção! Em %d minutos você tem uma entrega: %s", leadTimeMinutes, description)
}

// TestText is the announcement used by the manual integration test call.
func TestText() string {
	return "Teste do sistema de entregas! Se você ouviu isso, a integração está funcionando perfeitamente."
}

// LowStockText builds the spoken summary of items running low.
func LowStockText(items []models.StockItem) string {
	if len(items) == 0 {
		return "Estoque em dia, nenhum item abaixo do limite."
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, fmt.Sprintf("%s com %d unidades", item.Name, item.Quantity))
	}

	return "Atenção ao estoque! Itens acabando: " + strings.Join(names, ", ")
}
