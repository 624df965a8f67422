package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/smart-farm-service/internal/models"
	"github.com/kjstillabower/smart-farm-service/internal/observability"
	"github.com/kjstillabower/smart-farm-service/internal/reqctx"
)

// DefaultSoilThreshold trips an alert for any reading with soil strictly below it.
const DefaultSoilThreshold = 25

// Notifier delivers an alert message over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, message string) error
}

// AlertStore persists alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
}

// Evaluator applies the soil threshold to freshly stored readings.
// It never deduplicates: every qualifying reading yields a new alert and one
// attempt per notifier.
type Evaluator struct {
	store         AlertStore
	notifiers     []Notifier
	threshold     int
	notifyTimeout time.Duration // 0 = wait as long as the channel takes
	logger        *zap.Logger
}

// NewEvaluator returns an Evaluator. A non-positive threshold falls back to DefaultSoilThreshold.
func NewEvaluator(store AlertStore, notifiers []Notifier, threshold int, notifyTimeout time.Duration, logger *zap.Logger) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultSoilThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		store:         store,
		notifiers:     notifiers,
		threshold:     threshold,
		notifyTimeout: notifyTimeout,
		logger:        logger,
	}
}

// Threshold returns the configured soil threshold.
func (e *Evaluator) Threshold() int {
	return e.threshold
}

// Message formats the alert text for r.
func Message(r models.Reading) string {
	return fmt.Sprintf("Low soil moisture: %d%% at %s", r.Soil, r.Timestamp.UTC().Format(models.DisplayTimeLayout))
}

// Evaluate records an alert and fans it out when r is below the threshold.
// Returns true when an alert was recorded. Failures are logged, never returned.
func (e *Evaluator) Evaluate(ctx context.Context, r models.Reading) bool {
	if r.Soil >= e.threshold {
		return false
	}
	logger := reqctx.Logger(ctx, e.logger)

	readingID := r.ID
	alert := &models.Alert{
		ReadingID: &readingID,
		Message:   Message(r),
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		logger.Error("alert check failed", zap.Uint("reading_id", r.ID), zap.Error(err))
		return false
	}
	observability.AlertsCreatedTotal.Inc()
	logger.Info("alert created", zap.Uint("alert_id", alert.ID), zap.Uint("reading_id", r.ID), zap.Int("soil", r.Soil))

	for _, n := range e.notifiers {
		e.notify(ctx, logger, n, alert.Message)
	}
	return true
}

// notify runs one channel in isolation so a panic or error stays contained.
func (e *Evaluator) notify(ctx context.Context, logger *zap.Logger, n Notifier, message string) {
	start := time.Now()
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
		observability.RecordNotification(n.Name(), err, time.Since(start).Seconds())
		if err != nil {
			logger.Warn("notification failed", zap.String("channel", n.Name()), zap.Error(err))
			return
		}
		logger.Info("notification sent", zap.String("channel", n.Name()))
	}()

	if e.notifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.notifyTimeout)
		defer cancel()
	}
	err = n.Notify(ctx, message)
}
