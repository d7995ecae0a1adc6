// Package live keeps a poll's results current while it is on screen. An
// interval poller re-fetches the poll and a best-effort WebSocket pushes
// vote updates; both feed one sequence so an older snapshot never
// overwrites a newer one.
package live

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"pollctl/internal/client/api"
	"pollctl/internal/client/events"
	"pollctl/internal/client/stats"
	"pollctl/pkg/protocol"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const DefaultInterval = 2 * time.Second

const (
	OriginPoll   = "poll"
	OriginSocket = "socket"
	OriginVote   = "vote"
)

// Source fetches a poll. *api.Client implements it.
type Source interface {
	GetPoll(ctx context.Context, publicID string) (api.Poll, error)
}

// Snapshot is a full copy of the results at some point.
type Snapshot struct {
	PollID  string
	Seq     uint64
	Origin  string
	Results api.Results
	Poll    *api.Poll // nil for socket snapshots
	At      time.Time
}

type Options struct {
	Interval time.Duration
	// SocketURL is the live base (ws://host/ws). Empty disables the socket.
	SocketURL string
	// OnSnapshot runs for every applied snapshot, with the channel's lock
	// held. It must not call Close.
	OnSnapshot func(Snapshot)
	Bus        *events.Bus
	Stats      *stats.Stats
	Dialer     *websocket.Dialer
	Debug      bool
}

type Channel struct {
	pollID string
	source Source
	opts   Options

	seq atomic.Uint64

	mu      sync.Mutex
	closed  bool
	lastSeq uint64
	latest  *Snapshot

	connMu sync.Mutex
	conn   *websocket.Conn

	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
}

// Open starts the poller and, if configured, the socket subscription. The
// first fetch is issued immediately.
func Open(ctx context.Context, source Source, pollID string, opts Options) *Channel {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	c := &Channel{
		pollID: pollID,
		source: source,
		opts:   opts,
		cancel: cancel,
		group:  g,
	}

	g.Go(func() error { return c.runPoller(gctx) })
	if opts.SocketURL != "" {
		g.Go(func() error { return c.runSocket(gctx) })
	}
	return c
}

// Close stops both producers, closes the socket and waits for them. After
// Close returns no callback runs.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()

		c.group.Wait()
	})
}

// Latest returns the last applied snapshot.
func (c *Channel) Latest() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Snapshot{}, false
	}
	return *c.latest, true
}

// Offer applies results obtained outside the channel, such as the
// response to a vote, as the newest snapshot. Fetches issued before the
// call are dropped when they land.
func (c *Channel) Offer(results api.Results) Snapshot {
	snap := Snapshot{
		PollID:  c.pollID,
		Seq:     c.seq.Add(1),
		Origin:  OriginVote,
		Results: results.Clone(),
		At:      time.Now(),
	}
	c.apply(snap)
	return snap
}

func (c *Channel) Stats() *stats.Stats {
	return c.opts.Stats
}

func (c *Channel) runPoller(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		c.fetch(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Channel) fetch(ctx context.Context) {
	// Sequence is taken when the request is issued
	seq := c.seq.Add(1)

	start := time.Now()
	poll, err := c.source.GetPoll(ctx, c.pollID)
	c.opts.Stats.RecordFetch(time.Since(start), err)
	if err != nil {
		if ctx.Err() == nil {
			c.debugf("Poll fetch failed: %v", err)
		}
		return
	}

	c.apply(Snapshot{
		PollID:  c.pollID,
		Seq:     seq,
		Origin:  OriginPoll,
		Results: poll.Results.Clone(),
		Poll:    &poll,
		At:      time.Now(),
	})
}

// runSocket never returns an error: a dead socket must not stop the poller.
func (c *Channel) runSocket(ctx context.Context) error {
	target := c.opts.SocketURL + "/polls/" + url.PathEscape(c.pollID) + "/"
	c.publish(events.Event{Type: events.EventConnecting})

	start := time.Now()
	conn, _, err := c.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.debugf("Live socket dial failed: %v", err)
		return nil
	}

	c.connMu.Lock()
	if ctx.Err() != nil {
		c.connMu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connMu.Unlock()

	c.opts.Stats.SetSocketUp(true)
	c.publish(events.Event{Type: events.EventConnected, Data: events.ConnectedData{URL: target, Latency: time.Since(start)}})
	defer func() {
		conn.Close()
		c.opts.Stats.SetSocketUp(false)
		c.publish(events.Event{Type: events.EventDisconnected})
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.debugf("Live socket closed: %v", err)
			}
			return nil
		}
		// Sequence is taken when the message is received
		seq := c.seq.Add(1)

		votes, ok := c.parseMessage(data)
		c.opts.Stats.RecordSocketMessage(ok)
		if !ok {
			continue
		}
		c.apply(Snapshot{
			PollID:  c.pollID,
			Seq:     seq,
			Origin:  OriginSocket,
			Results: votes,
			At:      time.Now(),
		})
	}
}

// parseMessage reads the votes of a live message. Anything without a
// usable votes map is ignored.
func (c *Channel) parseMessage(data []byte) (api.Results, bool) {
	var msg protocol.LiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.debugf("Ignoring malformed live message: %v", err)
		return nil, false
	}
	if msg.Votes == nil {
		return nil, false
	}
	if msg.PollID != "" && msg.PollID != c.pollID {
		return nil, false
	}
	if err := protocol.ValidateVotes(msg.Votes); err != nil {
		c.debugf("Ignoring live message: %v", err)
		return nil, false
	}
	return api.Results(msg.Votes).Clone(), true
}

func (c *Channel) apply(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if snap.Seq <= c.lastSeq {
		c.opts.Stats.RecordStale()
		return
	}
	c.lastSeq = snap.Seq
	c.latest = &snap
	c.opts.Stats.RecordApplied()

	if c.opts.OnSnapshot != nil {
		c.opts.OnSnapshot(snap)
	}
	c.publish(events.Event{
		Type: events.EventSnapshot,
		Data: events.SnapshotData{
			PollID:  snap.PollID,
			Seq:     snap.Seq,
			Origin:  snap.Origin,
			Results: snap.Results.Clone(),
			Total:   snap.Results.Total(),
		},
	})
}

func (c *Channel) publish(e events.Event) {
	if c.opts.Bus != nil {
		c.opts.Bus.Publish(e)
	}
}

func (c *Channel) debugf(format string, args ...interface{}) {
	if c.opts.Debug {
		log.Printf(format, args...)
	}
}
