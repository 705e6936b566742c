package trigger

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
	"github.com/chainwatch-io/chainwatch/internal/notification"
)

// Service resolves and fires the triggers attached to a match. Delivery is
// sequential per match; a failing sink is logged and the remaining triggers
// still fire.
type Service struct {
	client *http.Client
	logger *zap.Logger

	// onError, when set, observes failed deliveries by trigger name.
	onError func(trigger string)
}

// OnError registers an observer for failed deliveries. Must be set before
// dispatching starts.
func (s *Service) OnError(fn func(trigger string)) {
	s.onError = fn
}

// NewService creates the dispatcher with a shared HTTP client for all
// webhook-style sinks.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.Named("trigger"),
	}
}

// Dispatch fires every trigger the match's monitor references. triggers is
// the immutable name-to-trigger map from the active configuration snapshot.
// Every delivery attempt carries a correlation id so one match's fan-out
// can be traced across log lines.
func (s *Service) Dispatch(ctx context.Context, triggers map[string]models.Trigger, match models.MonitorMatch) {
	names := match.TriggerNames()
	if len(names) == 0 {
		return
	}

	correlationID := uuid.NewString()
	vars := Variables(match)

	for _, name := range names {
		trig, ok := triggers[name]
		if !ok {
			s.logger.Warn("monitor references unknown trigger",
				zap.String("monitor", match.MonitorName()),
				zap.String("trigger", name),
				zap.String("correlation_id", correlationID))
			continue
		}
		if err := s.fire(ctx, &trig, vars); err != nil {
			if s.onError != nil {
				s.onError(name)
			}
			s.logger.Error("trigger delivery failed",
				zap.String("monitor", match.MonitorName()),
				zap.String("trigger", name),
				zap.String("correlation_id", correlationID),
				zap.Error(err))
			continue
		}
		s.logger.Debug("trigger delivered",
			zap.String("monitor", match.MonitorName()),
			zap.String("trigger", name),
			zap.String("correlation_id", correlationID))
	}
}

func (s *Service) fire(ctx context.Context, trig *models.Trigger, vars map[string]string) error {
	template, err := trig.MessageTemplate()
	if err != nil {
		return err
	}
	message := models.NotificationMessage{
		Title: notification.Interpolate(template.Title, vars),
		Body:  notification.Interpolate(template.Body, vars),
	}
	notifier, err := notification.NewNotifier(trig, s.client, s.logger)
	if err != nil {
		return err
	}
	return notifier.Notify(ctx, message)
}
