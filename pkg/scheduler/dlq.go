package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nuulab/dicomflow/pkg/job"
)

// DLQEntry records one Job that exhausted its retries (spec.md §7
// ExhaustedRetries). Grounded on the teacher's DLQEntry
// (pkg/queue/dlq.go), adapted from a Redis list to an in-memory ring
// bounded at maxSize — the scheduler's admission table is itself
// in-memory, so its dead-letter record lives at the same durability
// tier.
type DLQEntry struct {
	JobID     string
	JobType   job.Type
	Error     string
	FailedAt  time.Time
	Attempts  int
}

// Alerter is notified whenever a Job lands in the DLQ.
type Alerter interface {
	Alert(ctx context.Context, entry DLQEntry) error
}

// DLQ is the scheduler's dead letter queue: every Job whose worker
// reported ExhaustedRetries lands here for operator inspection (spec.md
// §7). DLQ offers no way to re-admit an entry.
type DLQ struct {
	mu       sync.Mutex
	entries  []DLQEntry
	maxSize  int
	alerters []Alerter
}

// NewDLQ creates an empty DLQ retaining at most maxSize entries.
func NewDLQ(maxSize int) *DLQ {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &DLQ{maxSize: maxSize}
}

// AddAlerter registers an Alerter invoked (in its own goroutine) for
// every future Add.
func (d *DLQ) AddAlerter(a Alerter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerters = append(d.alerters, a)
}

// Add records j's failure and fires every registered Alerter.
func (d *DLQ) Add(ctx context.Context, j *job.Job, cause error) {
	entry := DLQEntry{
		JobID:    j.ID(),
		JobType:  j.Type(),
		Error:    cause.Error(),
		FailedAt: time.Now(),
		Attempts: j.RetryCounter() + 1,
	}

	d.mu.Lock()
	d.entries = append(d.entries, entry)
	if len(d.entries) > d.maxSize {
		d.entries = d.entries[len(d.entries)-d.maxSize:]
	}
	alerters := append([]Alerter(nil), d.alerters...)
	d.mu.Unlock()

	for _, a := range alerters {
		go a.Alert(ctx, entry)
	}
}

// Entries returns every currently retained DLQEntry, oldest first.
func (d *DLQ) Entries() []DLQEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DLQEntry(nil), d.entries...)
}

// Len reports how many entries are currently retained.
func (d *DLQ) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Purge discards every retained entry.
func (d *DLQ) Purge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
}

// WebhookAlerter POSTs a JSON payload describing the failure.
type WebhookAlerter struct {
	URL     string
	Headers map[string]string
	client  *http.Client
}

// NewWebhookAlerter creates a WebhookAlerter posting to url.
func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{URL: url, Headers: make(map[string]string), client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookAlerter) Alert(ctx context.Context, entry DLQEntry) error {
	data, err := json.Marshal(map[string]any{
		"type":      "job_exhausted_retries",
		"job_id":    entry.JobID,
		"job_type":  entry.JobType,
		"error":     entry.Error,
		"attempts":  entry.Attempts,
		"failed_at": entry.FailedAt,
	})
	if err != nil {
		return fmt.Errorf("dlq: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("dlq: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("dlq: webhook post: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// SlackAlerter posts a formatted message to a Slack incoming webhook.
type SlackAlerter struct {
	WebhookURL string
	Channel    string
	client     *http.Client
}

// NewSlackAlerter creates a SlackAlerter posting to webhookURL.
func NewSlackAlerter(webhookURL, channel string) *SlackAlerter {
	return &SlackAlerter{WebhookURL: webhookURL, Channel: channel, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *SlackAlerter) Alert(ctx context.Context, entry DLQEntry) error {
	text := fmt.Sprintf(":x: *Job exhausted retries*\n• Job ID: `%s`\n• Type: `%s`\n• Error: %s\n• Attempts: %d\n• Failed at: %s",
		entry.JobID, entry.JobType, entry.Error, entry.Attempts, entry.FailedAt.Format(time.RFC3339))

	payload := map[string]any{"text": text}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dlq: marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("dlq: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("dlq: slack post: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// LogAlerter writes the failure through a caller-supplied logger
// (cmd/server wires this to zerolog).
type LogAlerter struct {
	Logf func(format string, args ...any)
}

func (l *LogAlerter) Alert(_ context.Context, entry DLQEntry) error {
	l.Logf("job %s (%s) exhausted retries after %d attempts: %s", entry.JobID, entry.JobType, entry.Attempts, entry.Error)
	return nil
}

// CallbackAlerter invokes an arbitrary func, for tests and embedders that
// want the raw DLQEntry without a transport hop.
type CallbackAlerter struct {
	Callback func(entry DLQEntry)
}

func (c *CallbackAlerter) Alert(_ context.Context, entry DLQEntry) error {
	c.Callback(entry)
	return nil
}
