// Package notification delivers alerts to external channels (Telegram,
// webhooks, Kafka, the log) and suppresses repeated signal alerts.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"market-terminal/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// AlertKind identifies what produced the alert.
type AlertKind string

const (
	KindSignal      AlertKind = "signal"
	KindBreakEven   AlertKind = "break_even"
	KindExitWarning AlertKind = "exit_warning"
	KindSettled     AlertKind = "settled"
	KindTest        AlertKind = "test"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level      AlertLevel            `json:"level"`
	Kind       AlertKind             `json:"kind"`
	Instrument string                `json:"instrument,omitempty"`
	Title      string                `json:"title"`
	Message    string                `json:"message"`
	Decision   *model.SignalDecision `json:"decision,omitempty"`
	Time       time.Time             `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log (useful for development).
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Info().
		Str("level", string(alert.Level)).
		Str("kind", string(alert.Kind)).
		Str("instrument", alert.Instrument).
		Str("title", alert.Title).
		Msg(alert.Message)
	return nil
}

// Multi fans an alert out to every backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort wraps a notifier so delivery failures are logged at warn and
// never reach the caller. Each send gets its own timeout.
type BestEffort struct {
	next    Notifier
	timeout time.Duration
	log     zerolog.Logger
	onSend  func(kind AlertKind, err error)
}

// NewBestEffort wraps next. onSend, if non-nil, observes every attempt.
func NewBestEffort(next Notifier, timeout time.Duration, log zerolog.Logger, onSend func(AlertKind, error)) *BestEffort {
	return &BestEffort{next: next, timeout: timeout, log: log, onSend: onSend}
}

func (b *BestEffort) Send(ctx context.Context, alert Alert) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	err := b.next.Send(ctx, alert)
	if b.onSend != nil {
		b.onSend(alert.Kind, err)
	}
	if err != nil {
		b.log.Warn().Err(err).
			Str("kind", string(alert.Kind)).
			Str("instrument", alert.Instrument).
			Msg("notification failed")
	}
	return nil
}
