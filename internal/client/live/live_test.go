package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pollctl/internal/client/api"
	"pollctl/internal/client/events"
	"pollctl/internal/client/session"
	"pollctl/internal/client/stats"
	"pollctl/internal/testutil"
	"pollctl/pkg/protocol"

	"github.com/gorilla/websocket"
)

const testPollID = "3f2b9c1e-7a4d-4e8b-9c2f-1d5e6a7b8c9d"

// fakeSource returns results that grow by one vote per fetch.
type fakeSource struct {
	calls atomic.Int64
	err   error
}

func (f *fakeSource) GetPoll(ctx context.Context, id string) (api.Poll, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return api.Poll{}, f.err
	}
	return api.Poll{PublicID: id, Results: api.Results{1: n}}, nil
}

// blockingSource blocks until its context is cancelled, then reports
// success anyway.
type blockingSource struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingSource) GetPoll(ctx context.Context, id string) (api.Poll, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return api.Poll{PublicID: id, Results: api.Results{1: 99}}, nil
}

// gatedSource holds its first fetch until release is closed.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) GetPoll(ctx context.Context, id string) (api.Poll, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return api.Poll{PublicID: id, Results: api.Results{1: 4}}, nil
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPollerDeliversSnapshots(t *testing.T) {
	src := &fakeSource{}
	rec := &recorder{}
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	ch := Open(context.Background(), src, testPollID, Options{
		Interval:   20 * time.Millisecond,
		OnSnapshot: rec.add,
		Bus:        bus,
	})
	waitFor(t, "three snapshots", func() bool { return len(rec.all()) >= 3 })
	ch.Close()

	snaps := rec.all()
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Seq <= snaps[i-1].Seq {
			t.Errorf("Seq %d after %d, want increasing", snaps[i].Seq, snaps[i-1].Seq)
		}
		if snaps[i].Origin != OriginPoll {
			t.Errorf("Origin = %s, want poll", snaps[i].Origin)
		}
	}

	latest, ok := ch.Latest()
	if !ok {
		t.Fatal("Latest() should be set")
	}
	if latest.Seq != snaps[len(snaps)-1].Seq {
		t.Errorf("Latest().Seq = %d, want %d", latest.Seq, snaps[len(snaps)-1].Seq)
	}

	select {
	case e := <-sub:
		if e.Type != events.EventSnapshot {
			t.Errorf("event = %v, want snapshot", e.Type)
		}
		data, ok := e.Data.(events.SnapshotData)
		if !ok || data.PollID != testPollID {
			t.Errorf("event data = %+v", e.Data)
		}
	case <-time.After(time.Second):
		t.Error("no snapshot event published")
	}

	if got := ch.Stats().Snapshot().Applied; got != int64(len(snaps)) {
		t.Errorf("Applied = %d, want %d", got, len(snaps))
	}
}

func TestStaleSnapshotDropped(t *testing.T) {
	rec := &recorder{}
	c := &Channel{pollID: testPollID, opts: Options{OnSnapshot: rec.add, Stats: stats.New()}}

	c.apply(Snapshot{Seq: 5, Results: api.Results{1: 3}})
	c.apply(Snapshot{Seq: 3, Results: api.Results{1: 1}})
	c.apply(Snapshot{Seq: 5, Results: api.Results{1: 2}})
	c.apply(Snapshot{Seq: 7, Results: api.Results{1: 4}})

	snaps := rec.all()
	if len(snaps) != 2 {
		t.Fatalf("applied %d snapshots, want 2", len(snaps))
	}
	if snaps[0].Seq != 5 || snaps[1].Seq != 7 {
		t.Errorf("applied seqs = %d, %d, want 5, 7", snaps[0].Seq, snaps[1].Seq)
	}
	if got := c.opts.Stats.Snapshot().Stale; got != 2 {
		t.Errorf("Stale = %d, want 2", got)
	}
}

func TestCloseDuringFetch(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	var calls atomic.Int64

	ch := Open(context.Background(), src, testPollID, Options{
		Interval:   10 * time.Millisecond,
		OnSnapshot: func(Snapshot) { calls.Add(1) },
	})

	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	ch.Close()
	time.Sleep(50 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("callbacks = %d, want 0", n)
	}
	if _, ok := ch.Latest(); ok {
		t.Error("Latest() should be empty")
	}

	// Close is idempotent
	ch.Close()
}

func TestOfferOutranksEarlierFetch(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	rec := &recorder{}

	ch := Open(context.Background(), src, testPollID, Options{Interval: time.Hour, OnSnapshot: rec.add})
	defer ch.Close()

	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	offered := ch.Offer(api.Results{1: 5})
	if offered.Origin != OriginVote {
		t.Errorf("Origin = %s, want vote", offered.Origin)
	}

	close(src.release)
	waitFor(t, "stale fetch", func() bool { return ch.Stats().Snapshot().Stale == 1 })

	latest, ok := ch.Latest()
	if !ok {
		t.Fatal("Latest() should be set")
	}
	if latest.Seq != offered.Seq {
		t.Errorf("Latest().Seq = %d, want %d", latest.Seq, offered.Seq)
	}
	if got := latest.Results.Count(1); got != 5 {
		t.Errorf("Count(1) = %d, want 5", got)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("applied %d snapshots, want 1", n)
	}
}

func TestSocketFailureKeepsPolling(t *testing.T) {
	src := &fakeSource{}
	rec := &recorder{}

	ch := Open(context.Background(), src, testPollID, Options{
		Interval:   20 * time.Millisecond,
		SocketURL:  "ws://127.0.0.1:1/ws",
		OnSnapshot: rec.add,
	})
	defer ch.Close()

	waitFor(t, "snapshots", func() bool { return len(rec.all()) >= 2 })
	if ch.Stats().Snapshot().SocketUp {
		t.Error("SocketUp should be false")
	}
}

func TestFetchErrorsAreSwallowed(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	rec := &recorder{}

	ch := Open(context.Background(), src, testPollID, Options{Interval: 10 * time.Millisecond, OnSnapshot: rec.add})
	waitFor(t, "fetches", func() bool { return src.calls.Load() >= 3 })
	ch.Close()

	if len(rec.all()) != 0 {
		t.Errorf("snapshots = %d, want 0", len(rec.all()))
	}
	snap := ch.Stats().Snapshot()
	if snap.FetchErrors == 0 || snap.FetchErrors != snap.Fetches {
		t.Errorf("FetchErrors = %d, Fetches = %d", snap.FetchErrors, snap.Fetches)
	}
}

func TestSocketIgnoresUnusableMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`not json`,
			`{"type":"ping"}`,
			`{"type":"vote_update","poll_id":"someone-else","votes":{"1":9}}`,
			`{"type":"vote_update","votes":{"1":-2}}`,
			`{"type":"vote_update","poll_id":"` + testPollID + `","votes":{"1":4,"2":1}}`,
		} {
			conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		conn.ReadMessage()
	}))
	defer ts.Close()

	rec := &recorder{}
	ch := Open(context.Background(), &fakeSource{err: errors.New("offline")}, testPollID, Options{
		Interval:   time.Hour,
		SocketURL:  "ws" + strings.TrimPrefix(ts.URL, "http"),
		OnSnapshot: rec.add,
	})
	defer ch.Close()

	waitFor(t, "socket snapshot", func() bool { return len(rec.all()) == 1 })

	snap := rec.all()[0]
	if snap.Origin != OriginSocket {
		t.Errorf("Origin = %s, want socket", snap.Origin)
	}
	if snap.Results.Count(1) != 4 || snap.Results.Count(2) != 1 {
		t.Errorf("Results = %v", snap.Results)
	}
	if snap.Poll != nil {
		t.Error("socket snapshots carry no poll")
	}

	waitFor(t, "message counters", func() bool { return ch.Stats().Snapshot().SocketMessages == 5 })
	if got := ch.Stats().Snapshot().Ignored; got != 4 {
		t.Errorf("Ignored = %d, want 4", got)
	}
}

func TestLiveAgainstDevServer(t *testing.T) {
	ts, srv := testutil.NewServer(t)
	owner := testutil.RegisterUser(t, ts, "owner")
	created := testutil.CreatePoll(t, ts, owner.Access, protocol.CreatePollRequest{
		Title:      "Lunch",
		VotingMode: protocol.ModeOpen,
		IsPublic:   true,
		Choices:    testutil.Choices("Pizza", "Salad"),
	})

	sess, _ := session.New(session.NewMemoryStore())
	client := api.NewClient(testutil.APIURL(ts), sess)

	rec := &recorder{}
	ch := Open(context.Background(), client, created.PublicID, Options{
		Interval:   time.Hour,
		SocketURL:  testutil.WSURL(ts),
		OnSnapshot: rec.add,
	})
	defer ch.Close()

	waitFor(t, "initial fetch", func() bool { return len(rec.all()) >= 1 })
	if first := rec.all()[0]; first.Poll == nil || first.Results.Total() != 0 {
		t.Errorf("initial snapshot = %+v, want an empty poll snapshot", first)
	}
	waitFor(t, "socket watcher", func() bool { return srv.Hub().Watchers(created.PublicID) == 1 })

	pizza := created.Choices[0].ID
	status, body := testutil.DoJSON(t, http.MethodPost, testutil.APIURL(ts)+"/polls/"+created.PublicID+"/vote/", "",
		protocol.VoteRequest{ChoiceID: pizza, VoterToken: "voter-1"})
	if status != http.StatusOK {
		t.Fatalf("vote: status %d: %s", status, body)
	}

	waitFor(t, "pushed snapshot", func() bool {
		latest, ok := ch.Latest()
		return ok && latest.Origin == OriginSocket && latest.Results.Count(pizza) == 1
	})
	if !ch.Stats().Snapshot().SocketUp {
		t.Error("SocketUp should be true")
	}
}
