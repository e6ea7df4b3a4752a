package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/dailydigest/internal/digest"
	"github.com/mohammad-safakhou/dailydigest/internal/telemetry"
)

// RecipientResult is the outcome of one send.
type RecipientResult struct {
	Email  string `json:"email"`
	Status string `json:"status"` // success | failed | error
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates one dispatch across all recipients.
type Report struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Details []RecipientResult `json:"details"`
}

// AllFailedError means not a single recipient received the digest.
type AllFailedError struct {
	Recipients int
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("delivery failed for all %d recipients", e.Recipients)
}

// Dispatcher sends one message per recipient, serially. Sends are not
// parallelized: the provider rate-limits, and a fixed pause separates
// consecutive sends.
type Dispatcher struct {
	sender Sender
	from   string
	delay  time.Duration
	logger *log.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a dispatcher with the given inter-send delay.
func NewDispatcher(sender Sender, from string, delay time.Duration, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[MAIL] ", log.LstdFlags)
	}
	return &Dispatcher{
		sender: sender,
		from:   from,
		delay:  delay,
		logger: logger,
		sleep:  ctxSleep,
	}
}

// Send renders the digest once and dispatches it to every recipient. Each
// outcome is recorded independently; the call errors only when zero
// recipients succeeded.
func (d *Dispatcher) Send(ctx context.Context, data digest.Data, recipients []string) (Report, error) {
	now := time.Now()
	html, text, err := Render(data, now)
	if err != nil {
		return Report{}, err
	}
	subject := fmt.Sprintf("Daily Digest — %s", now.Format("2006-01-02"))

	report := Report{Details: make([]RecipientResult, 0, len(recipients))}
	succeeded := 0
	for i, to := range recipients {
		if i > 0 && d.delay > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				return report, err
			}
		}
		id, err := d.sender.Send(ctx, Message{
			From:    d.from,
			To:      to,
			Subject: subject,
			HTML:    html,
			Text:    text,
		})
		res := RecipientResult{Email: to}
		switch {
		case err == nil:
			res.Status = "success"
			res.ID = id
			succeeded++
		default:
			var pe *ProviderError
			if errors.As(err, &pe) {
				res.Status = "failed"
			} else {
				res.Status = "error"
			}
			res.Error = err.Error()
			d.logger.Printf("send to %s: %v", to, err)
		}
		telemetry.EmailsSent.WithLabelValues(res.Status).Inc()
		report.Details = append(report.Details, res)
	}

	if succeeded == 0 {
		report.Message = "all sends failed"
		return report, &AllFailedError{Recipients: len(recipients)}
	}
	report.Success = true
	report.Message = fmt.Sprintf("sent to %d of %d recipients", succeeded, len(recipients))
	d.logger.Printf("%s", report.Message)
	return report, nil
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
