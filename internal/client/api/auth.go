package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"pollctl/pkg/protocol"
)

// Login signs in and stores the tokens and user in the session.
func (c *Client) Login(ctx context.Context, username, password string) (*protocol.User, error) {
	const op = "login"

	resp, err := c.send(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/auth/login/",
		body:   protocol.LoginRequest{Username: username, Password: password},
	})
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusBadRequest || resp.status == http.StatusUnauthorized {
		eb := parseErrorBody(resp.body, "Invalid username or password")
		return nil, &AuthError{Message: eb.message, Err: ErrInvalidCredentials}
	}
	if !resp.ok() {
		return nil, failure(op, resp, "Login failed")
	}

	var out protocol.AuthResponse
	if err := decodeAuth(op, resp.body, &out, true); err != nil {
		return nil, err
	}
	if err := c.signIn(&out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Register creates an account. When the service returns tokens the user
// is signed in as well.
func (c *Client) Register(ctx context.Context, p Profile) (*protocol.User, error) {
	const op = "register"

	p.Username = strings.TrimSpace(p.Username)
	switch {
	case p.Username == "":
		return nil, &ValidationError{Field: "username", Message: "Username is required"}
	case len(p.Password) < minPasswordLength:
		return nil, &ValidationError{Field: "password", Message: "Password must be at least 6 characters"}
	case p.Password != p.PasswordConfirm:
		return nil, &ValidationError{Field: "password", Message: "Passwords must match"}
	}

	resp, err := c.send(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/auth/register/",
		body: protocol.RegisterRequest{
			Username:  p.Username,
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Password:  p.Password,
			Password2: p.PasswordConfirm,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusBadRequest {
		eb := parseErrorBody(resp.body, "Registration failed")
		return nil, &ValidationError{Message: eb.message, Fields: eb.fields}
	}
	if !resp.ok() {
		return nil, failure(op, resp, "Registration failed")
	}

	var out protocol.AuthResponse
	if err := decodeAuth(op, resp.body, &out, false); err != nil {
		return nil, err
	}
	if out.Access != "" {
		if err := c.signIn(&out); err != nil {
			return nil, err
		}
	}
	return out.User, nil
}

// Logout notifies the service best-effort and always clears the session.
// Only a failure to clear local state is returned.
func (c *Client) Logout(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	if c.session.AccessToken() != "" {
		resp, err := c.send(ctx, request{
			op:     "logout",
			method: http.MethodPost,
			path:   "/auth/logout/",
			body:   protocol.RefreshRequest{Refresh: c.session.RefreshToken()},
			auth:   authStored,
		})
		if err != nil {
			log.Printf("Logout request failed: %v", err)
		} else if !resp.ok() {
			log.Printf("Logout returned HTTP %d", resp.status)
		}
	}
	return c.session.Clear()
}

// Refresh exchanges a refresh token for a new access token. It implements
// session.Refresher.
func (c *Client) Refresh(ctx context.Context, refresh string) (string, error) {
	const op = "refresh"

	resp, err := c.send(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/auth/token/refresh/",
		body:   protocol.RefreshRequest{Refresh: refresh},
	})
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		eb := parseErrorBody(resp.body, "Session expired")
		return "", &AuthError{Message: eb.message, Err: ErrUnauthorized}
	}

	var out protocol.RefreshResponse
	if err := decode(op, resp.body, &out); err != nil {
		return "", err
	}
	return out.Access, nil
}

func (c *Client) signIn(out *protocol.AuthResponse) error {
	if c.session == nil {
		return nil
	}
	return c.session.SignIn(out.User, out.Access, out.Refresh)
}

type authEnvelope struct {
	protocol.AuthResponse
	requireTokens bool
}

func (a *authEnvelope) Validate() error {
	return a.AuthResponse.Validate(a.requireTokens)
}

func decodeAuth(op string, body []byte, out *protocol.AuthResponse, requireTokens bool) error {
	env := authEnvelope{requireTokens: requireTokens}
	if err := decode(op, body, &env); err != nil {
		return err
	}
	*out = env.AuthResponse
	return nil
}
