// Package voting tracks one voter's progress through a poll:
// loading, then needsToken or ready, then voted.
package voting

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pollctl/internal/client/api"
)

type State int

const (
	StateLoading State = iota
	StateNeedsToken
	StateReady
	StateVoted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateNeedsToken:
		return "needs_token"
	case StateReady:
		return "ready"
	case StateVoted:
		return "voted"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyVoted = errors.New("already voted in this session")
	ErrNotReady     = errors.New("not ready to vote")
	ErrEmptyToken   = errors.New("voter token is empty")
	ErrSubmitting   = errors.New("a vote is already being submitted")
)

// Voter casts a vote. *api.Client implements it.
type Voter interface {
	CastVote(ctx context.Context, poll api.Poll, choiceID int64, voterToken string) (api.Results, error)
}

type Machine struct {
	voter Voter

	mu         sync.Mutex
	state      State
	poll       api.Poll
	token      string
	results    api.Results
	lastErr    error
	submitting bool
}

func New(voter Voter) *Machine {
	return &Machine{voter: voter, state: StateLoading}
}

// Load sets the poll being voted on. token is an optional voter token
// supplied up front (for example from the command line). A machine that
// has already voted stays voted.
func (m *Machine) Load(poll api.Poll, token string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.poll = poll
	if m.state == StateVoted {
		return m.state
	}
	if t := strings.TrimSpace(token); t != "" {
		m.token = t
	}
	if poll.Restricted() && m.token == "" {
		m.state = StateNeedsToken
	} else {
		m.state = StateReady
	}
	return m.state
}

// AcceptToken stores a trimmed, non-empty token and leaves needsToken.
func (m *Machine) AcceptToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := strings.TrimSpace(token)
	if t == "" {
		m.lastErr = ErrEmptyToken
		return ErrEmptyToken
	}
	switch m.state {
	case StateNeedsToken:
		m.token = t
		m.state = StateReady
		m.lastErr = nil
		return nil
	case StateReady:
		m.token = t
		return nil
	case StateVoted:
		return ErrAlreadyVoted
	default:
		return ErrNotReady
	}
}

// Select votes for choiceID. On success the machine moves to voted and
// keeps the returned results; on failure it stays ready with LastError
// set so the voter can try again.
func (m *Machine) Select(ctx context.Context, choiceID int64) (api.Results, error) {
	m.mu.Lock()
	switch {
	case m.state == StateVoted:
		m.mu.Unlock()
		return nil, ErrAlreadyVoted
	case m.state != StateReady:
		m.mu.Unlock()
		return nil, ErrNotReady
	case m.submitting:
		m.mu.Unlock()
		return nil, ErrSubmitting
	}
	m.submitting = true
	poll, token := m.poll, m.token
	m.mu.Unlock()

	results, err := m.voter.CastVote(ctx, poll, choiceID, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitting = false
	if err != nil {
		m.lastErr = err
		return nil, err
	}
	m.state = StateVoted
	m.results = results.Clone()
	m.lastErr = nil
	return results, nil
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Results returns the results returned by the accepted vote, or nil.
func (m *Machine) Results() api.Results {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		return nil
	}
	return m.results.Clone()
}

func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
