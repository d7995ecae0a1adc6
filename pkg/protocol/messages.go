package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorCode represents structured error codes for API error bodies.
type ErrorCode string

const (
	ErrorCodeNone          ErrorCode = ""
	ErrorCodeValidation    ErrorCode = "validation"
	ErrorCodeInvalidToken  ErrorCode = "invalid_token"
	ErrorCodeTokenUsed     ErrorCode = "token_used"
	ErrorCodeMissingToken  ErrorCode = "missing_token"
	ErrorCodePollClosed    ErrorCode = "poll_closed"
	ErrorCodeInvalidChoice ErrorCode = "invalid_choice"
	ErrorCodeAlreadyVoted  ErrorCode = "already_voted"
	ErrorCodeNotOwner      ErrorCode = "not_owner"
	ErrorCodeNotFound      ErrorCode = "not_found"
	ErrorCodeUnauthorized  ErrorCode = "unauthorized"
)

// Voting modes.
const (
	ModeOpen       = "open"
	ModeRestricted = "restricted"
)

// Poll statuses.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusOpen      = "open"
	StatusClosed    = "closed"
)

// LiveMessageVoteUpdate is the type tag of results broadcasts.
const LiveMessageVoteUpdate = "vote_update"

// ErrorResponse is the body of any non-2xx reply. The collaborator uses
// either Error or Detail; ErrorCode is optional.
type ErrorResponse struct {
	Error     string    `json:"error,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
}

// MessageResponse is returned by endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}

func (r *RefreshResponse) Validate() error {
	if r.Access == "" {
		return errors.New("missing access token")
	}
	return nil
}

// User is the public view of an account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (u *User) Validate() error {
	if u.Username == "" {
		return errors.New("user without username")
	}
	return nil
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Message string `json:"message,omitempty"`
	User    *User  `json:"user"`
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
}

// Validate checks the body of a login or register reply. Login replies must
// carry both tokens; register replies carry both or neither.
func (r *AuthResponse) Validate(requireTokens bool) error {
	if r.User == nil {
		return errors.New("missing user")
	}
	if err := r.User.Validate(); err != nil {
		return err
	}
	if (r.Access == "") != (r.Refresh == "") {
		return errors.New("incomplete token pair")
	}
	if requireTokens && r.Access == "" {
		return errors.New("missing tokens")
	}
	return nil
}

type Choice struct {
	ID    int64  `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

type ChoiceInput struct {
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// Poll is the read representation of a poll, results included.
type Poll struct {
	PublicID    string          `json:"public_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	CreatedBy   *User           `json:"created_by,omitempty"`
	StartsAt    *time.Time      `json:"starts_at,omitempty"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
	IsOpen      bool            `json:"is_open"`
	IsPublic    bool            `json:"is_public"`
	CreatedAt   time.Time       `json:"created_at"`
	Choices     []Choice        `json:"choices"`
	Status      string          `json:"status"`
	VotingMode  string          `json:"voting_mode"`
	PollLink    string          `json:"poll_link,omitempty"`
	Results     map[int64]int64 `json:"results"`
	Tokens      []string        `json:"tokens,omitempty"`
}

func (p *Poll) Validate() error {
	if _, err := uuid.Parse(p.PublicID); err != nil {
		return fmt.Errorf("public_id %q: %w", p.PublicID, err)
	}
	if p.Title == "" {
		return errors.New("poll without title")
	}
	if !ValidMode(p.VotingMode) {
		return fmt.Errorf("unknown voting_mode %q", p.VotingMode)
	}
	if !ValidStatus(p.Status) {
		return fmt.Errorf("unknown status %q", p.Status)
	}
	if len(p.Choices) < 2 {
		return fmt.Errorf("poll has %d choices, want at least 2", len(p.Choices))
	}
	ids := make(map[int64]bool, len(p.Choices))
	for _, c := range p.Choices {
		if ids[c.ID] {
			return fmt.Errorf("duplicate choice id %d", c.ID)
		}
		ids[c.ID] = true
	}
	if err := ValidateVotes(p.Results); err != nil {
		return err
	}
	for id := range p.Results {
		if !ids[id] {
			return fmt.Errorf("results reference unknown choice %d", id)
		}
	}
	return nil
}

// ValidateVotes rejects negative counts. A nil map is a valid empty tally.
func ValidateVotes(votes map[int64]int64) error {
	for id, n := range votes {
		if n < 0 {
			return fmt.Errorf("negative count %d for choice %d", n, id)
		}
	}
	return nil
}

func ValidMode(m string) bool {
	return m == ModeOpen || m == ModeRestricted
}

func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusOpen, StatusClosed:
		return true
	}
	return false
}

type CreatePollRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	VotingMode  string        `json:"voting_mode"`
	IsPublic    bool          `json:"is_public"`
	StartsAt    *time.Time    `json:"starts_at,omitempty"`
	EndsAt      *time.Time    `json:"ends_at,omitempty"`
	Choices     []ChoiceInput `json:"choices"`
}

type VoteRequest struct {
	ChoiceID   int64  `json:"choice_id"`
	VoterToken string `json:"voter_token"`
}

type VoteResponse struct {
	Message string          `json:"message,omitempty"`
	Results map[int64]int64 `json:"results"`
}

func (r *VoteResponse) Validate() error {
	if r.Results == nil {
		return errors.New("missing results")
	}
	return ValidateVotes(r.Results)
}

type TokensRequest struct {
	Count int `json:"count"`
}

// TokensResponse is returned by both token generation and token listing.
type TokensResponse struct {
	PollPublicID string   `json:"poll_public_id,omitempty"`
	PollLink     string   `json:"poll_link,omitempty"`
	Tokens       []string `json:"tokens"`
	Message      string   `json:"message,omitempty"`
}

func (r *TokensResponse) Validate() error {
	if r.Tokens == nil {
		return errors.New("missing tokens")
	}
	for i, t := range r.Tokens {
		if t == "" {
			return fmt.Errorf("empty token at index %d", i)
		}
	}
	return nil
}

// LiveMessage is pushed on /ws/polls/{id}/. Only Votes is consumed; a
// message without it is not a results snapshot.
type LiveMessage struct {
	Type   string          `json:"type,omitempty"`
	PollID string          `json:"poll_id,omitempty"`
	Votes  map[int64]int64 `json:"votes"`
}
