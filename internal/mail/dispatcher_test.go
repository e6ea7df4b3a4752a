package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/dailydigest/internal/digest"
)

type fakeSender struct {
	failFor map[string]error
	sent    []Message
}

func (f *fakeSender) Send(_ context.Context, msg Message) (string, error) {
	f.sent = append(f.sent, msg)
	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	return "msg-" + msg.To, nil
}

func sampleDigest() digest.Data {
	return digest.Data{
		Social: []digest.Item{{
			Title:         "A",
			SummaryCN:     "摘要",
			SummaryEN:     "summary",
			SourceURL:     "https://a",
			SourceName:    "X",
			AIScore:       80,
			AIScoreReason: "notable",
			Tags:          []string{"x"},
		}},
	}
}

func TestSendPartialFailure(t *testing.T) {
	sender := &fakeSender{failFor: map[string]error{
		"b@example.com": &ProviderError{Status: 422, Message: "invalid recipient"},
	}}
	d := NewDispatcher(sender, "Digest <d@example.com>", 100*time.Millisecond, nil)
	var pauses int
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		if dur != 100*time.Millisecond {
			t.Fatalf("unexpected pause duration %v", dur)
		}
		pauses++
		return nil
	}

	report, err := d.Send(context.Background(), sampleDigest(),
		[]string{"a@example.com", "b@example.com", "c@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !report.Success {
		t.Fatal("partial failure must still report success")
	}
	if pauses != 2 {
		t.Fatalf("3 sends require exactly 2 pauses, got %d", pauses)
	}
	if len(report.Details) != 3 {
		t.Fatalf("expected 3 details, got %d", len(report.Details))
	}
	statuses := map[string]string{}
	for _, res := range report.Details {
		statuses[res.Email] = res.Status
	}
	if statuses["a@example.com"] != "success" || statuses["c@example.com"] != "success" {
		t.Fatalf("unexpected statuses: %v", statuses)
	}
	if statuses["b@example.com"] != "failed" {
		t.Fatalf("provider rejection must record failed, got %q", statuses["b@example.com"])
	}
}

func TestSendAllFailed(t *testing.T) {
	sender := &fakeSender{failFor: map[string]error{
		"a@example.com": errors.New("dial timeout"),
		"b@example.com": errors.New("dial timeout"),
	}}
	d := NewDispatcher(sender, "d@example.com", 0, nil)

	report, err := d.Send(context.Background(), sampleDigest(),
		[]string{"a@example.com", "b@example.com"})
	var all *AllFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
	if all.Recipients != 2 {
		t.Fatalf("expected 2 recipients in error, got %d", all.Recipients)
	}
	for _, res := range report.Details {
		if res.Status != "error" {
			t.Fatalf("transport failure must record error, got %q", res.Status)
		}
	}
}

func TestSendSerialOrder(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, "d@example.com", 0, nil)

	_, err := d.Send(context.Background(), sampleDigest(),
		[]string{"first@example.com", "second@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 2 || sender.sent[0].To != "first@example.com" || sender.sent[1].To != "second@example.com" {
		t.Fatalf("sends must stay in recipient order: %+v", sender.sent)
	}
	if sender.sent[0].HTML == "" || sender.sent[0].Text == "" {
		t.Fatal("both bodies must be rendered")
	}
}
