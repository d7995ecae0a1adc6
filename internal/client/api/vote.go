package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pollctl/pkg/protocol"

	"github.com/google/uuid"
)

// CastVote votes for choiceID on poll and returns the updated results.
//
// Votes the client can tell are doomed fail with *VotingError before any
// request: unknown choice, closed poll or outside the schedule window, and
// a restricted poll without a token. On an open poll an empty token is
// replaced by a fresh correlation token; it identifies the request only and
// carries no authorization.
func (c *Client) CastVote(ctx context.Context, poll Poll, choiceID int64, voterToken string) (Results, error) {
	const op = "vote"

	if _, ok := poll.Choice(choiceID); !ok {
		return nil, &VotingError{Code: protocol.ErrorCodeInvalidChoice, Message: fmt.Sprintf("Choice %d is not part of this poll", choiceID)}
	}
	if reason := poll.VotingClosedReason(c.now()); reason != "" {
		return nil, &VotingError{Code: protocol.ErrorCodePollClosed, Message: reason}
	}

	token := strings.TrimSpace(voterToken)
	if token == "" {
		if poll.Restricted() {
			return nil, &VotingError{Code: protocol.ErrorCodeMissingToken, Message: "This poll requires a voter token"}
		}
		token = CorrelationToken(c.now())
	}

	resp, err := c.send(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   pollPath(poll.PublicID, "vote/"),
		body:   protocol.VoteRequest{ChoiceID: choiceID, VoterToken: token},
	})
	if err != nil {
		return nil, err
	}
	switch resp.status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict:
		eb := parseErrorBody(resp.body, "Vote was not accepted")
		msg := eb.message
		if len(eb.fields) > 0 {
			msg += ": " + formatFields(eb.fields)
		}
		return nil, &VotingError{Code: eb.code, Message: msg, Status: resp.status}
	}
	if !resp.ok() {
		return nil, failure(op, resp, "Vote failed")
	}

	var out protocol.VoteResponse
	if err := decode(op, resp.body, &out); err != nil {
		return nil, err
	}
	for id := range out.Results {
		if _, ok := poll.Choice(id); !ok {
			return nil, &DecodeError{Op: op, Err: fmt.Errorf("results reference unknown choice %d", id)}
		}
	}
	return Results(out.Results).Clone(), nil
}

// CorrelationToken returns "anon-<unix nanos>-<8 hex chars>". Values differ
// across calls but are not a dedup or security mechanism.
func CorrelationToken(now time.Time) string {
	return fmt.Sprintf("anon-%d-%s", now.UnixNano(), uuid.NewString()[:8])
}
