package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/sms-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an API-backed mailer, or a log-only mailer when no API
// key is configured so development environments still work.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		logger.Info("mail api key not configured, falling back to log-only mailer")
		return &logMailer{logger: logger}
	}
	return &apiMailer{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type logMailer struct {
	logger *zap.Logger
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email (log only)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

type apiMailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
	client *http.Client
}

const sendEndpoint = "https://api.resend.com/emails"

func (m *apiMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]interface{}{
		"from":    fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromEmail),
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail provider returned status %d", resp.StatusCode)
	}
	return nil
}
