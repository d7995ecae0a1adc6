package voting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pollctl/internal/client/api"
	"pollctl/pkg/protocol"
)

type fakeVoter struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	err    error
	delay  time.Duration
}

func (f *fakeVoter) CastVote(ctx context.Context, poll api.Poll, choiceID int64, token string) (api.Results, error) {
	f.mu.Lock()
	f.calls++
	f.tokens = append(f.tokens, token)
	err, delay := f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return api.Results{choiceID: 1}, nil
}

func (f *fakeVoter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func openPoll() api.Poll {
	return api.Poll{
		PublicID: "9e1c7f3a-2b4d-4c5e-8f6a-7b8c9d0e1f2a",
		Mode:     protocol.ModeOpen,
		Status:   protocol.StatusOpen,
		Choices:  []protocol.Choice{{ID: 1, Text: "A"}, {ID: 2, Text: "B", Order: 1}},
	}
}

func restrictedPoll() api.Poll {
	p := openPoll()
	p.Mode = protocol.ModeRestricted
	return p
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateLoading, "loading"},
		{StateNeedsToken, "needs_token"},
		{StateReady, "ready"},
		{StateVoted, "voted"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	m := New(&fakeVoter{})
	if m.State() != StateLoading {
		t.Errorf("initial State() = %v, want loading", m.State())
	}

	if got := New(&fakeVoter{}).Load(openPoll(), ""); got != StateReady {
		t.Errorf("Load(open) = %v, want ready", got)
	}
	if got := New(&fakeVoter{}).Load(restrictedPoll(), ""); got != StateNeedsToken {
		t.Errorf("Load(restricted) = %v, want needs_token", got)
	}
	if got := New(&fakeVoter{}).Load(restrictedPoll(), " tok "); got != StateReady {
		t.Errorf("Load(restricted, token) = %v, want ready", got)
	}
}

func TestSelectBeforeLoad(t *testing.T) {
	v := &fakeVoter{}
	m := New(v)
	if _, err := m.Select(context.Background(), 1); !errors.Is(err, ErrNotReady) {
		t.Errorf("Select() error = %v, want ErrNotReady", err)
	}
	if v.count() != 0 {
		t.Errorf("calls = %d, want 0", v.count())
	}
}

func TestRestrictedFlow(t *testing.T) {
	v := &fakeVoter{}
	m := New(v)
	m.Load(restrictedPoll(), "")

	if _, err := m.Select(context.Background(), 1); !errors.Is(err, ErrNotReady) {
		t.Errorf("Select() in needs_token error = %v, want ErrNotReady", err)
	}

	if err := m.AcceptToken("   "); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("AcceptToken(blank) error = %v, want ErrEmptyToken", err)
	}
	if m.State() != StateNeedsToken {
		t.Errorf("State() = %v, want needs_token", m.State())
	}

	if err := m.AcceptToken("  abc123 "); err != nil {
		t.Fatalf("AcceptToken() error = %v", err)
	}
	if m.State() != StateReady {
		t.Errorf("State() = %v, want ready", m.State())
	}
	if m.Token() != "abc123" {
		t.Errorf("Token() = %q, want abc123", m.Token())
	}

	results, err := m.Select(context.Background(), 2)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if results.Count(2) != 1 {
		t.Errorf("results = %v", results)
	}
	if v.tokens[0] != "abc123" {
		t.Errorf("sent token = %q, want abc123", v.tokens[0])
	}
}

func TestVotedIsTerminal(t *testing.T) {
	v := &fakeVoter{}
	m := New(v)
	m.Load(openPoll(), "")

	if _, err := m.Select(context.Background(), 1); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if m.State() != StateVoted {
		t.Fatalf("State() = %v, want voted", m.State())
	}
	if m.Results().Count(1) != 1 {
		t.Errorf("Results() = %v", m.Results())
	}

	if _, err := m.Select(context.Background(), 2); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("second Select() error = %v, want ErrAlreadyVoted", err)
	}
	if v.count() != 1 {
		t.Errorf("calls = %d, want 1", v.count())
	}

	if got := m.Load(openPoll(), ""); got != StateVoted {
		t.Errorf("Load() after voting = %v, want voted", got)
	}
	if err := m.AcceptToken("x"); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("AcceptToken() after voting error = %v, want ErrAlreadyVoted", err)
	}
}

func TestFailedVoteStaysReady(t *testing.T) {
	refused := &api.VotingError{Code: protocol.ErrorCodeTokenUsed, Message: "Token already used", Status: 400}
	v := &fakeVoter{err: refused}
	m := New(v)
	m.Load(restrictedPoll(), "used-token")

	_, err := m.Select(context.Background(), 1)
	var ve *api.VotingError
	if !errors.As(err, &ve) {
		t.Fatalf("Select() error = %v, want VotingError", err)
	}
	if m.State() != StateReady {
		t.Errorf("State() = %v, want ready", m.State())
	}
	if m.LastError() != err {
		t.Errorf("LastError() = %v, want %v", m.LastError(), err)
	}
	if m.Results() != nil {
		t.Errorf("Results() = %v, want nil", m.Results())
	}

	// Retry with a new token succeeds
	v.mu.Lock()
	v.err = nil
	v.mu.Unlock()
	if err := m.AcceptToken("fresh-token"); err != nil {
		t.Fatalf("AcceptToken() error = %v", err)
	}
	if _, err := m.Select(context.Background(), 1); err != nil {
		t.Fatalf("retry Select() error = %v", err)
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
}

func TestConcurrentSelect(t *testing.T) {
	v := &fakeVoter{delay: 100 * time.Millisecond}
	m := New(v)
	m.Load(openPoll(), "")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Select(context.Background(), 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrSubmitting) && !errors.Is(err, ErrAlreadyVoted) {
			t.Errorf("Select() error = %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("successful selects = %d, want 1", ok)
	}
	if v.count() != 1 {
		t.Errorf("calls = %d, want 1", v.count())
	}
}
