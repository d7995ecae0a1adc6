// Package testutil runs the development server in-process for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"pollctl/internal/devserver"
	"pollctl/internal/storage"
	"pollctl/pkg/protocol"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TestSecret signs the test server's JWTs.
var TestSecret = []byte("pollctl-test-secret")

// NewServer starts a devserver backed by a fresh in-memory database.
func NewServer(t *testing.T) (*httptest.Server, *devserver.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(storage.MemoryDSN(uuid.NewString()))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	srv := devserver.New(db, TestSecret)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return ts, srv
}

// APIURL is the REST base of a test server.
func APIURL(ts *httptest.Server) string {
	return ts.URL + "/api"
}

// WSURL is the live-results base of a test server.
func WSURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// DoJSON sends body as JSON with an optional bearer token and returns the
// status and raw response body.
func DoJSON(t *testing.T, method, url, access string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp.StatusCode, data
}

// RegisterUser creates an account and returns its auth response.
func RegisterUser(t *testing.T, ts *httptest.Server, username string) protocol.AuthResponse {
	t.Helper()

	status, body := DoJSON(t, http.MethodPost, APIURL(ts)+"/auth/register/", "", protocol.RegisterRequest{
		Username:  username,
		Password:  "secret123",
		Password2: "secret123",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, status, body)
	}

	var out protocol.AuthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return out
}

// CreatePoll creates a poll as the owner of access.
func CreatePoll(t *testing.T, ts *httptest.Server, access string, req protocol.CreatePollRequest) protocol.Poll {
	t.Helper()

	status, body := DoJSON(t, http.MethodPost, APIURL(ts)+"/polls/create/", access, req)
	if status != http.StatusCreated {
		t.Fatalf("create poll: status %d: %s", status, body)
	}

	var out protocol.Poll
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("create poll: %v", err)
	}
	return out
}

// Choices builds choice inputs in order.
func Choices(texts ...string) []protocol.ChoiceInput {
	out := make([]protocol.ChoiceInput, len(texts))
	for i, text := range texts {
		out[i] = protocol.ChoiceInput{Text: text, Order: i}
	}
	return out
}

// CountingTransport counts requests passing through it.
type CountingTransport struct {
	Base http.RoundTripper
	n    atomic.Int64
}

func (c *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.n.Add(1)
	base := c.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (c *CountingTransport) Count() int64 {
	return c.n.Load()
}
