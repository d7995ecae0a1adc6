package api

import (
	"sort"
	"time"

	"pollctl/pkg/protocol"
)

// Results maps choice id to vote count. Missing ids count as zero.
type Results map[int64]int64

func (r Results) Count(choiceID int64) int64 {
	return r[choiceID]
}

func (r Results) Total() int64 {
	var total int64
	for _, n := range r {
		total += n
	}
	return total
}

// Clone returns a copy that is never nil.
func (r Results) Clone() Results {
	out := make(Results, len(r))
	for id, n := range r {
		out[id] = n
	}
	return out
}

// Poll is a validated poll as seen by the client. Choices are sorted by
// their order.
type Poll struct {
	PublicID    string
	Title       string
	Description string
	Mode        string
	Status      string
	StartsAt    *time.Time
	EndsAt      *time.Time
	IsOpen      bool
	IsPublic    bool
	CreatedAt   time.Time
	Owner       *protocol.User
	Choices     []protocol.Choice
	Results     Results
	Tokens      []string // owner only
	Link        string
}

func (p *Poll) Restricted() bool {
	return p.Mode == protocol.ModeRestricted
}

func (p *Poll) Choice(id int64) (protocol.Choice, bool) {
	for _, c := range p.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return protocol.Choice{}, false
}

// VotingClosedReason returns why the poll does not accept votes at now, or
// "" if it does. Only the status and the schedule window are considered;
// the service remains the authority.
func (p *Poll) VotingClosedReason(now time.Time) string {
	if p.Status == protocol.StatusClosed {
		return "Poll is closed"
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return "Voting has not started yet"
	}
	if p.EndsAt != nil && !now.Before(*p.EndsAt) {
		return "Voting has ended"
	}
	return ""
}

func fromProtocol(in protocol.Poll) Poll {
	choices := make([]protocol.Choice, len(in.Choices))
	copy(choices, in.Choices)
	sort.SliceStable(choices, func(i, j int) bool {
		return choices[i].Order < choices[j].Order
	})

	return Poll{
		PublicID:    in.PublicID,
		Title:       in.Title,
		Description: in.Description,
		Mode:        in.VotingMode,
		Status:      in.Status,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		IsOpen:      in.IsOpen,
		IsPublic:    in.IsPublic,
		CreatedAt:   in.CreatedAt,
		Owner:       in.CreatedBy,
		Choices:     choices,
		Results:     Results(in.Results).Clone(),
		Tokens:      in.Tokens,
		Link:        in.PollLink,
	}
}

// PollSpec describes a poll to create. When every choice has Order 0 the
// choices are numbered by position.
type PollSpec struct {
	Title       string
	Description string
	Mode        string // defaults to open
	Public      bool
	Choices     []protocol.ChoiceInput
	StartsAt    *time.Time
	EndsAt      *time.Time
}

// Profile is the registration form.
type Profile struct {
	Username        string
	Email           string
	FirstName       string
	LastName        string
	Password        string
	PasswordConfirm string
}

const minPasswordLength = 6
