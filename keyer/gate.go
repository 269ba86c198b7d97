package keyer

import (
	"context"
	"errors"
	"time"
)

// GateConfig configures the transmission confirmation window.
type GateConfig struct {
	Keypress time.Duration // debounce for the confirming tap
	Quiet    time.Duration // pause after the message before the window opens
	Window   time.Duration // how long the window stays open
}

var (
	ErrEmptyMessage = errors.New("confirmation gate requires a non-empty message")
	ErrNoSender     = errors.New("confirmation gate requires a sender")
	ErrGateBusy     = errors.New("confirmation gate already open")
)

// Gate holds one finished message until the operator confirms it with a tap
// or the window expires. It carries no state from one message to the next.
type Gate struct {
	cfg      GateConfig
	sender   Sender
	active   bool
	msg      Message
	opensAt  time.Time
	deadline time.Time
	clock    Clock
}

// NewGate builds a gate around sender.
func NewGate(cfg GateConfig, sender Sender) (*Gate, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if cfg.Keypress <= 0 || cfg.Window <= 0 || cfg.Quiet < 0 {
		return nil, errors.New("confirmation gate: keypress and window must be positive, quiet non-negative")
	}
	return &Gate{cfg: cfg, sender: sender}, nil
}

// Purpose: Start a confirmation cycle for msg.
// Key aspects: The window opens after the quiet period and closes Window later.
// Upstream: Station on EventMessage.
// Downstream: none.
func (g *Gate) Open(msg Message, now time.Time) error {
	if g.active {
		return ErrGateBusy
	}
	if msg.Empty() || msg.Text == "" {
		return ErrEmptyMessage
	}
	g.active = true
	g.msg = msg
	g.opensAt = now.Add(g.cfg.Quiet)
	g.deadline = g.opensAt.Add(g.cfg.Window)
	g.clock.Reset()
	return nil
}

// Active reports whether a message is waiting for confirmation.
func (g *Gate) Active() bool {
	return g.active
}

// Window returns when sampling starts and when the window expires.
func (g *Gate) Window() (opensAt, deadline time.Time) {
	return g.opensAt, g.deadline
}

// Purpose: Feed one key sample into the open window.
// Key aspects: Samples during the quiet period are ignored; a press held past
// the debounce threshold sends exactly once; the deadline skips the message.
// Every path that returns done=true has already closed the gate.
// Upstream: Station.Tick in ModeConfirm.
// Downstream: Sender.Send.
func (g *Gate) Observe(ctx context.Context, key KeyState, now time.Time) (GateResult, bool) {
	if !g.active || now.Before(g.opensAt) {
		return GateResult{}, false
	}
	if !now.Before(g.deadline) {
		res := GateResult{Outcome: OutcomeSkipped, Message: g.msg, ClosedAt: now}
		g.close()
		return res, true
	}
	if key == KeyReleased {
		g.clock.Reset()
		return GateResult{}, false
	}
	if _, pressing := g.clock.PressedAt(); !pressing {
		g.clock.RecordPress(now)
		return GateResult{}, false
	}
	if held, _ := g.clock.SincePress(now); held > g.cfg.Keypress {
		return g.send(ctx, now), true
	}
	return GateResult{}, false
}

func (g *Gate) send(ctx context.Context, now time.Time) GateResult {
	msg := g.msg
	g.close()
	receipt, err := g.sender.Send(ctx, msg.Text)
	if err != nil {
		return GateResult{Outcome: OutcomeFailed, Message: msg, Err: err, ClosedAt: now}
	}
	if receipt.SentAt.IsZero() {
		receipt.SentAt = now
	}
	return GateResult{Outcome: OutcomeSent, Message: msg, Receipt: receipt, ClosedAt: now}
}

// Cancel closes the gate without sending, e.g. on shutdown.
func (g *Gate) Cancel() {
	g.close()
}

func (g *Gate) close() {
	g.active = false
	g.msg = Message{}
	g.opensAt = time.Time{}
	g.deadline = time.Time{}
	g.clock.Reset()
}
