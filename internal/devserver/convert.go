package devserver

import (
	"time"

	"pollctl/internal/models"
	"pollctl/pkg/protocol"
)

// statusAt derives the poll status from its schedule window.
func statusAt(p *models.Poll, now time.Time) string {
	switch {
	case now.Before(p.StartsAt):
		return protocol.StatusScheduled
	case now.Before(p.EndsAt):
		return protocol.StatusOpen
	default:
		return protocol.StatusClosed
	}
}

func hasChoice(p *models.Poll, choiceID int64) bool {
	for _, c := range p.Choices {
		if int64(c.ID) == choiceID {
			return true
		}
	}
	return false
}

func pollLink(publicID string) string {
	return "/vote/" + publicID + "/"
}

func toPoll(p *models.Poll, results map[int64]int64, tokens []string) protocol.Poll {
	startsAt, endsAt := p.StartsAt, p.EndsAt
	if results == nil {
		results = map[int64]int64{}
	}

	out := protocol.Poll{
		PublicID:    p.PublicID,
		Title:       p.Title,
		Description: p.Description,
		StartsAt:    &startsAt,
		EndsAt:      &endsAt,
		IsOpen:      p.Status == protocol.StatusOpen,
		IsPublic:    p.IsPublic,
		CreatedAt:   p.CreatedAt,
		Choices:     make([]protocol.Choice, len(p.Choices)),
		Status:      p.Status,
		VotingMode:  p.VotingMode,
		PollLink:    pollLink(p.PublicID),
		Results:     results,
		Tokens:      tokens,
	}
	if p.CreatedBy.ID != 0 {
		out.CreatedBy = toUser(&p.CreatedBy)
	}
	for i, c := range p.Choices {
		out.Choices[i] = protocol.Choice{ID: int64(c.ID), Text: c.Text, Order: c.Position}
	}
	return out
}
