// Package sender holds the transmission backends a confirmed message can be
// handed to: a log-only sender, an MQTT publisher and a DX cluster announcer.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"morsekey/keyer"
)

// ErrEmptyText is returned when a backend is asked to send nothing.
var ErrEmptyText = errors.New("sender: empty message text")

// Payload is the structured form of a transmitted message.
type Payload struct {
	ID          string    `json:"id"`
	Station     string    `json:"station,omitempty"`
	Text        string    `json:"text"`
	Fingerprint string    `json:"fingerprint"`
	SentAt      time.Time `json:"sent_at"`
}

// Fingerprint returns a stable 64-bit hash of the normalised message text,
// so receivers can discard duplicates of the same message.
func Fingerprint(text string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(strings.ToUpper(strings.TrimSpace(text))))
}

func newPayload(station, text string, now time.Time) Payload {
	return Payload{
		ID:          uuid.NewString(),
		Station:     station,
		Text:        text,
		Fingerprint: Fingerprint(text),
		SentAt:      now.UTC(),
	}
}

// Log is a sender that only writes the message to the log.
type Log struct {
	Station string
	now     func() time.Time
}

// NewLog returns a log-only sender.
func NewLog(station string) *Log {
	return &Log{Station: station, now: time.Now}
}

func (l *Log) Send(_ context.Context, text string) (keyer.Receipt, error) {
	if strings.TrimSpace(text) == "" {
		return keyer.Receipt{}, ErrEmptyText
	}
	p := newPayload(l.Station, text, l.now())
	log.Printf("Sender: %q (id=%s fingerprint=%s)", p.Text, p.ID, p.Fingerprint)
	return keyer.Receipt{ID: p.ID, Destination: "log", SentAt: p.SentAt}, nil
}

type timeoutSender struct {
	next    keyer.Sender
	timeout time.Duration
}

// WithTimeout bounds every Send on next by timeout. A non-positive timeout
// returns next unchanged.
func WithTimeout(next keyer.Sender, timeout time.Duration) keyer.Sender {
	if next == nil || timeout <= 0 {
		return next
	}
	return &timeoutSender{next: next, timeout: timeout}
}

func (t *timeoutSender) Send(ctx context.Context, text string) (keyer.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	receipt, err := t.next.Send(ctx, text)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return receipt, fmt.Errorf("send timed out after %s: %w", t.timeout, err)
	}
	return receipt, err
}
