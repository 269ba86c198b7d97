package sender

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ziutek/telnet"

	"morsekey/keyer"
	"morsekey/strutil"
)

// ClusterOptions configures the DX cluster announcer.
type ClusterOptions struct {
	Host        string
	Port        int
	Callsign    string
	LoginPrompt string // e.g. "login:"
	Command     string // e.g. "announce"
	Timeout     time.Duration
}

// Cluster posts each confirmed message to a DX cluster node over telnet as an
// announcement. Every Send is a short session: login, command, bye.
type Cluster struct {
	opts ClusterOptions
	now  func() time.Time
}

// NewCluster returns an announcer for opts. Callsign and command are upper-
// and lower-cased respectively.
func NewCluster(opts ClusterOptions) *Cluster {
	opts.Callsign = strutil.NormalizeUpper(opts.Callsign)
	opts.Command = strings.ToLower(strings.TrimSpace(opts.Command))
	if opts.Command == "" {
		opts.Command = "announce"
	}
	if opts.LoginPrompt == "" {
		opts.LoginPrompt = "login:"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Cluster{opts: opts, now: time.Now}
}

func (c *Cluster) addr() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// Purpose: Log in and announce text on the cluster.
// Key aspects: The connection is closed when ctx ends so a hung node cannot
// stall the keying loop beyond the caller's deadline.
// Upstream: keyer.Gate via sender.WithTimeout.
// Downstream: telnet.DialTimeout, ReadUntil.
func (c *Cluster) Send(ctx context.Context, text string) (keyer.Receipt, error) {
	text = strutil.NormalizeUpper(strutil.SingleLine(text))
	if text == "" {
		return keyer.Receipt{}, ErrEmptyText
	}
	addr := c.addr()
	conn, err := telnet.DialTimeout("tcp", addr, c.opts.Timeout)
	if err != nil {
		return keyer.Receipt{}, fmt.Errorf("cluster: dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := c.now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.ReadUntil(c.opts.LoginPrompt); err != nil {
		return keyer.Receipt{}, c.wrap(ctx, "waiting for login prompt", err)
	}
	if err := writeLine(conn, c.opts.Callsign); err != nil {
		return keyer.Receipt{}, c.wrap(ctx, "sending callsign", err)
	}
	if _, err := conn.ReadUntil(">"); err != nil {
		return keyer.Receipt{}, c.wrap(ctx, "waiting for prompt", err)
	}
	if err := writeLine(conn, c.opts.Command+" "+text); err != nil {
		return keyer.Receipt{}, c.wrap(ctx, "sending "+c.opts.Command, err)
	}
	if _, err := conn.ReadUntil(">"); err != nil {
		return keyer.Receipt{}, c.wrap(ctx, "waiting for acknowledgement", err)
	}
	_ = writeLine(conn, "bye")

	p := newPayload(c.opts.Callsign, text, c.now())
	log.Printf("Cluster: announced %q on %s as %s", text, addr, c.opts.Callsign)
	return keyer.Receipt{ID: p.ID, Destination: "cluster:" + addr, SentAt: p.SentAt}, nil
}

func (c *Cluster) wrap(ctx context.Context, step string, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		// The read deadline can fire a moment before ctx notices its own.
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			ctxErr = context.DeadlineExceeded
		}
	}
	if ctxErr != nil {
		return fmt.Errorf("cluster: %s: %w", step, ctxErr)
	}
	return fmt.Errorf("cluster: %s: %w", step, err)
}

func writeLine(conn *telnet.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}
