// Package notify pushes load lifecycle events to external sinks.
// Delivery is fire-and-forget: a slow or failing sink never blocks or
// fails a load.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/andresvega/loaderd/internal/config"
	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/logger"
)

// Event types emitted by the pipeline.
const (
	EventLoadStarted   = "load_started"
	EventLoadCompleted = "load_completed"
	EventLoadFailed    = "load_failed"
	EventRollback      = "rollback_executed"
)

// Event is the payload delivered to every sink.
type Event struct {
	Type        string    `json:"type"`
	JobID       string    `json:"job_id,omitempty"`
	TargetTable string    `json:"target_table,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	TotalRows   int       `json:"total_rows,omitempty"`
	Inserted    int       `json:"inserted,omitempty"`
	Updated     int       `json:"updated,omitempty"`
	Errors      int       `json:"errors,omitempty"`
	SuccessRate float64   `json:"success_rate,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FromRecord builds an event out of a finalized ledger entry.
func FromRecord(eventType string, rec *domain.LoadRecord) Event {
	return Event{
		Type:        eventType,
		JobID:       rec.JobID,
		TargetTable: rec.TargetTable,
		Mode:        string(rec.Mode),
		TotalRows:   rec.TotalRows,
		Inserted:    rec.InsertedRows,
		Updated:     rec.UpdatedRows,
		Errors:      rec.ErrorRows,
		SuccessRate: rec.SuccessRate,
		Message:     rec.ErrorMessage,
		Timestamp:   time.Now(),
	}
}

// Sink delivers one event somewhere external.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
	Name() string
}

// Notifier fans events out to its sinks, applying the configured
// filters first.
type Notifier struct {
	sinks          []Sink
	onlyOnErrors   bool
	minSuccessRate float64
	timeout        time.Duration
}

// New builds a Notifier from configuration. A configuration with no
// sink URLs yields a notifier that drops everything, which keeps
// call sites unconditional.
func New(cfg *config.NotifyConfig) *Notifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	n := &Notifier{
		onlyOnErrors:   cfg.OnlyOnErrors,
		minSuccessRate: cfg.MinSuccessRate,
		timeout:        timeout,
	}
	if cfg.WebhookURL != "" {
		n.sinks = append(n.sinks, NewWebhookSink(cfg.WebhookURL, timeout))
	}
	if cfg.SlackWebhook != "" {
		n.sinks = append(n.sinks, NewSlackSink(cfg.SlackWebhook, timeout))
	}
	return n
}

// Publish applies the filters and delivers asynchronously. Returns
// immediately; delivery errors are logged, never surfaced.
func (n *Notifier) Publish(ctx context.Context, event Event) {
	if len(n.sinks) == 0 || !n.wants(event) {
		return
	}

	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent: "notify",
		"event":               event.Type,
	})

	// Detached context: the request that triggered the event may finish
	// before delivery does.
	go func() {
		deliverCtx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		for _, sink := range n.sinks {
			if err := sink.Deliver(deliverCtx, event); err != nil {
				log.WithError(err).WithField("sink", sink.Name()).Warn("event delivery failed")
			}
		}
	}()
}

// wants applies the event filters: only_on_errors suppresses clean
// completions, min_success_rate suppresses completions above the bar.
func (n *Notifier) wants(event Event) bool {
	switch event.Type {
	case EventLoadFailed:
		return true
	case EventLoadCompleted:
		if n.onlyOnErrors && event.Errors == 0 {
			return false
		}
		if n.minSuccessRate > 0 && event.SuccessRate >= n.minSuccessRate && event.Errors == 0 {
			return false
		}
		return true
	default:
		return !n.onlyOnErrors
	}
}

// WebhookSink posts the raw event JSON to a generic webhook.
type WebhookSink struct {
	client *resty.Client
	url    string
}

// NewWebhookSink creates a webhook sink with retry on transient failures.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &WebhookSink{client: client, url: url}
}

// Name identifies the sink in delivery logs.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver posts the event.
func (s *WebhookSink) Deliver(ctx context.Context, event Event) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// SlackSink posts a human-readable summary to a Slack incoming webhook.
type SlackSink struct {
	client *resty.Client
	url    string
}

// NewSlackSink creates a Slack sink.
func NewSlackSink(url string, timeout time.Duration) *SlackSink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &SlackSink{client: client, url: url}
}

// Name identifies the sink in delivery logs.
func (s *SlackSink) Name() string { return "slack" }

// Deliver posts the formatted event.
func (s *SlackSink) Deliver(ctx context.Context, event Event) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": slackText(event)}).
		Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func slackText(event Event) string {
	switch event.Type {
	case EventLoadStarted:
		return fmt.Sprintf(":arrow_forward: Load started into `%s` (%s mode), job `%s`",
			event.TargetTable, event.Mode, event.JobID)
	case EventLoadCompleted:
		return fmt.Sprintf(":white_check_mark: Load into `%s` completed: %d rows, %d inserted, %d updated, %d errors (%.1f%% success)",
			event.TargetTable, event.TotalRows, event.Inserted, event.Updated, event.Errors, event.SuccessRate)
	case EventLoadFailed:
		return fmt.Sprintf(":x: Load into `%s` failed: %s", event.TargetTable, event.Message)
	case EventRollback:
		return fmt.Sprintf(":leftwards_arrow_with_hook: Rollback executed on `%s`: %d rows removed",
			event.TargetTable, event.TotalRows)
	default:
		return fmt.Sprintf("%s on `%s`", event.Type, event.TargetTable)
	}
}
