package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/pkg/config"
	"github.com/campusflow/sms-api/pkg/jobs"
	"github.com/campusflow/sms-api/pkg/mail"
)

const (
	jobWelcomeEmail     = "welcome_email"
	jobAnnouncementMail = "announcement_email"
)

type welcomePayload struct {
	Email    string
	Role     string
	Password string
}

type announcementPayload struct {
	Recipients []string
	Title      string
	Content    string
}

// NotificationService delivers emails asynchronously through a worker
// queue so request handlers never block on the mail provider.
type NotificationService struct {
	mailer  mail.Mailer
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the service and its queue. Call
// Start before enqueueing and Stop on shutdown. metrics may be nil.
func NewNotificationService(mailer mail.Mailer, cfg config.MailConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{mailer: mailer, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("mail", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return s
}

// Start launches the mail workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the mail workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// SendWelcome queues a welcome email carrying the initial credentials.
func (s *NotificationService) SendWelcome(email, role, password string) {
	s.enqueue(jobWelcomeEmail, welcomePayload{Email: email, Role: role, Password: password})
}

// BroadcastAnnouncement queues one email per recipient for an urgent
// announcement.
func (s *NotificationService) BroadcastAnnouncement(recipients []string, title, content string) {
	if len(recipients) == 0 {
		return
	}
	s.enqueue(jobAnnouncementMail, announcementPayload{Recipients: recipients, Title: title, Content: content})
}

func (s *NotificationService) enqueue(jobType string, payload interface{}) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue mail job", zap.String("type", jobType), zap.Error(err))
		return
	}
	s.metrics.RecordMailJob(jobType)
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobWelcomeEmail:
		payload, ok := job.Payload.(welcomePayload)
		if !ok {
			return fmt.Errorf("unexpected payload for %s job", job.Type)
		}
		return s.mailer.Send(ctx, mail.Message{
			To:      payload.Email,
			Subject: "Welcome to the school portal",
			HTML: fmt.Sprintf(
				"<p>Your %s account has been created.</p><p>Login: %s<br>Temporary password: %s</p><p>Please change your password after the first login.</p>",
				payload.Role, payload.Email, payload.Password),
		})
	case jobAnnouncementMail:
		payload, ok := job.Payload.(announcementPayload)
		if !ok {
			return fmt.Errorf("unexpected payload for %s job", job.Type)
		}
		for _, to := range payload.Recipients {
			msg := mail.Message{
				To:      to,
				Subject: "Urgent announcement: " + payload.Title,
				HTML:    fmt.Sprintf("<h3>%s</h3><p>%s</p>", payload.Title, payload.Content),
			}
			if err := s.mailer.Send(ctx, msg); err != nil {
				s.logger.Warn("announcement email failed", zap.String("to", to), zap.Error(err))
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown mail job type %q", job.Type)
	}
}
