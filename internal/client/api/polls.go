package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pollctl/pkg/protocol"

	"github.com/google/uuid"
)

type pollList []protocol.Poll

func (l pollList) Validate() error {
	for i := range l {
		if err := l[i].Validate(); err != nil {
			return fmt.Errorf("poll %d: %w", i, err)
		}
	}
	return nil
}

// ListPolls returns the public polls.
func (c *Client) ListPolls(ctx context.Context) ([]Poll, error) {
	return c.listPolls(ctx, "list polls", nil, authNone)
}

// ListOwnedPolls returns the signed-in user's polls.
func (c *Client) ListOwnedPolls(ctx context.Context) ([]Poll, error) {
	return c.listPolls(ctx, "list my polls", url.Values{"owner": {"true"}}, authPrivileged)
}

func (c *Client) listPolls(ctx context.Context, op string, query url.Values, auth authMode) ([]Poll, error) {
	resp, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/polls/", query: query, auth: auth})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, failure(op, resp, "Could not load polls")
	}

	var list pollList
	if err := decode(op, resp.body, &list); err != nil {
		return nil, err
	}
	if list == nil {
		return nil, &DecodeError{Op: op, Err: fmt.Errorf("expected a list of polls")}
	}

	polls := make([]Poll, len(list))
	for i, p := range list {
		polls[i] = fromProtocol(p)
	}
	return polls, nil
}

// GetPoll fetches one poll with its current results.
func (c *Client) GetPoll(ctx context.Context, publicID string) (Poll, error) {
	const op = "get poll"
	if err := checkPollID(publicID); err != nil {
		return Poll{}, err
	}

	resp, err := c.send(ctx, request{op: op, method: http.MethodGet, path: pollPath(publicID, "")})
	if err != nil {
		return Poll{}, err
	}
	if !resp.ok() {
		return Poll{}, failure(op, resp, "Could not load poll")
	}
	return decodePoll(op, resp.body)
}

// CreatePoll validates spec locally and creates the poll.
func (c *Client) CreatePoll(ctx context.Context, spec PollSpec) (Poll, error) {
	const op = "create poll"

	req, err := buildCreateRequest(spec)
	if err != nil {
		return Poll{}, err
	}

	resp, err := c.send(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/polls/create/",
		body:   req,
		auth:   authPrivileged,
	})
	if err != nil {
		return Poll{}, err
	}
	if resp.status == http.StatusBadRequest {
		eb := parseErrorBody(resp.body, "Could not create poll")
		return Poll{}, &ValidationError{Message: eb.message, Fields: eb.fields}
	}
	if !resp.ok() {
		return Poll{}, failure(op, resp, "Could not create poll")
	}
	return decodePoll(op, resp.body)
}

func buildCreateRequest(spec PollSpec) (*protocol.CreatePollRequest, error) {
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "Title is required"}
	}

	mode := spec.Mode
	if mode == "" {
		mode = protocol.ModeOpen
	}
	if !protocol.ValidMode(mode) {
		return nil, &ValidationError{Field: "voting_mode", Message: fmt.Sprintf("Unknown voting mode %q", mode)}
	}

	var choices []protocol.ChoiceInput
	ordered := false
	for _, in := range spec.Choices {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			continue
		}
		if in.Order != 0 {
			ordered = true
		}
		choices = append(choices, protocol.ChoiceInput{Text: text, Order: in.Order})
	}
	if len(choices) < 2 {
		return nil, &ValidationError{Field: "choices", Message: "A poll needs at least two choices"}
	}
	if !ordered {
		for i := range choices {
			choices[i].Order = i
		}
	}

	if spec.StartsAt != nil && spec.EndsAt != nil && !spec.StartsAt.Before(*spec.EndsAt) {
		return nil, &ValidationError{Field: "ends_at", Message: "End time must be after start time"}
	}

	return &protocol.CreatePollRequest{
		Title:       title,
		Description: strings.TrimSpace(spec.Description),
		VotingMode:  mode,
		IsPublic:    spec.Public,
		StartsAt:    spec.StartsAt,
		EndsAt:      spec.EndsAt,
		Choices:     choices,
	}, nil
}

// GenerateTokens creates count new voter tokens for a restricted poll.
func (c *Client) GenerateTokens(ctx context.Context, publicID string, count int) ([]string, error) {
	const op = "generate tokens"
	if count < 1 {
		return nil, &ValidationError{Field: "count", Message: "Token count must be at least 1"}
	}
	if err := checkPollID(publicID); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   pollPath(publicID, "tokens/"),
		body:   protocol.TokensRequest{Count: count},
		auth:   authPrivileged,
	})
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusBadRequest {
		eb := parseErrorBody(resp.body, "Could not generate tokens")
		return nil, &ValidationError{Message: eb.message, Fields: eb.fields}
	}
	if !resp.ok() {
		return nil, failure(op, resp, "Could not generate tokens")
	}

	var out protocol.TokensResponse
	if err := decode(op, resp.body, &out); err != nil {
		return nil, err
	}
	if len(out.Tokens) != count {
		return nil, &DecodeError{Op: op, Err: fmt.Errorf("got %d tokens, asked for %d", len(out.Tokens), count)}
	}
	return out.Tokens, nil
}

// FetchTokens returns the tokens generated so far for a poll.
func (c *Client) FetchTokens(ctx context.Context, publicID string) ([]string, error) {
	const op = "fetch tokens"
	if err := checkPollID(publicID); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, request{op: op, method: http.MethodGet, path: pollPath(publicID, "get-tokens/"), auth: authPrivileged})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, failure(op, resp, "Could not load tokens")
	}

	var out protocol.TokensResponse
	if err := decode(op, resp.body, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

// FinalizePoll records the final results of a closed poll.
func (c *Client) FinalizePoll(ctx context.Context, publicID string) (Poll, error) {
	const op = "finalize poll"
	if err := checkPollID(publicID); err != nil {
		return Poll{}, err
	}

	resp, err := c.send(ctx, request{op: op, method: http.MethodPost, path: pollPath(publicID, "finalize/"), auth: authPrivileged})
	if err != nil {
		return Poll{}, err
	}
	if !resp.ok() {
		return Poll{}, failure(op, resp, "Could not finalize poll")
	}
	return decodePoll(op, resp.body)
}

func (c *Client) DeletePoll(ctx context.Context, publicID string) error {
	const op = "delete poll"
	if err := checkPollID(publicID); err != nil {
		return err
	}

	resp, err := c.send(ctx, request{op: op, method: http.MethodDelete, path: pollPath(publicID, "delete/"), auth: authPrivileged})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return failure(op, resp, "Could not delete poll")
	}
	return nil
}

func decodePoll(op string, body []byte) (Poll, error) {
	var p protocol.Poll
	if err := decode(op, body, &p); err != nil {
		return Poll{}, err
	}
	return fromProtocol(p), nil
}

func checkPollID(publicID string) error {
	if _, err := uuid.Parse(publicID); err != nil {
		return &ValidationError{Field: "poll", Message: fmt.Sprintf("%q is not a poll id", publicID)}
	}
	return nil
}

func pollPath(publicID, suffix string) string {
	return "/polls/" + url.PathEscape(publicID) + "/" + suffix
}
