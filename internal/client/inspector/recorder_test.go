package inspector

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"pollctl/internal/client/events"
)

func TestRecorder(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "secret123") {
			t.Errorf("upstream body = %s, want the original password", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access":"aaa","refresh":"rrr","user":{"id":1,"username":"alice"}}`)
	}))
	defer api.Close()

	store := NewInMemoryStore(10)
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	client := &http.Client{Transport: NewRecorder(nil, store, bus)}
	req, _ := http.NewRequest(http.MethodPost, api.URL+"/api/auth/login/", strings.NewReader(`{"username":"alice","password":"secret123"}`))
	req.Header.Set("Authorization", "Bearer xyz")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"aaa"`) {
		t.Errorf("caller body = %s, want it untouched", body)
	}

	if store.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", store.Count())
	}
	ex := store.List()[0]
	if strings.Contains(ex.Request.Body, "secret123") {
		t.Errorf("recorded request body = %s, want password redacted", ex.Request.Body)
	}
	if !strings.Contains(ex.Request.Body, "alice") {
		t.Errorf("recorded request body = %s, want username kept", ex.Request.Body)
	}
	if got := ex.Request.Headers["Authorization"]; len(got) != 1 || got[0] != redacted {
		t.Errorf("Authorization = %v, want redacted", got)
	}
	if strings.Contains(ex.Response.Body, "aaa") || strings.Contains(ex.Response.Body, "rrr") {
		t.Errorf("recorded response body = %s, want tokens redacted", ex.Response.Body)
	}
	if ex.Response.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", ex.Response.Status)
	}

	var sawComplete bool
	timeout := time.After(time.Second)
	for !sawComplete {
		select {
		case e := <-sub:
			if e.Type == events.EventRequestComplete {
				sawComplete = true
				data := e.Data.(events.RequestData)
				if data.Path != "/api/auth/login/" || data.Status != http.StatusOK {
					t.Errorf("RequestData = %+v", data)
				}
			}
		case <-timeout:
			t.Fatal("no request_complete event")
		}
	}
}

func TestRecorder_TransportError(t *testing.T) {
	store := NewInMemoryStore(10)
	client := &http.Client{Transport: NewRecorder(nil, store, nil)}

	if _, err := client.Get("http://127.0.0.1:1/api/polls/"); err == nil {
		t.Fatal("expected a transport error")
	}
	ex := store.List()[0]
	if ex.Error == "" || ex.Response != nil {
		t.Errorf("exchange = %+v, want an error and no response", ex)
	}
}

func TestRedactBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		keep string
		drop string
	}{
		{"vote token", `{"choice_id":3,"voter_token":"abc"}`, `"choice_id":3`, "abc"},
		{"not json", `plain text`, "plain text", ""},
		{"list", `[{"password":"hunter2"}]`, redacted, "hunter2"},
		{"generated tokens", `{"poll_id":"p1","tokens":["SECRET-AAA","SECRET-BBB"]}`, `"poll_id":"p1"`, "SECRET-"},
		{"owner poll", `{"title":"Lunch","tokens":["SECRET-CCC"],"choices":[{"id":1}]}`, `"title":"Lunch"`, "SECRET-CCC"},
		{"owner list", `[{"title":"Lunch","tokens":["SECRET-DDD"]}]`, `"title":"Lunch"`, "SECRET-DDD"},
		{"untouched", `{"title":"Lunch"}`, `{"title":"Lunch"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactBody([]byte(tt.in))
			if !strings.Contains(got, tt.keep) {
				t.Errorf("redactBody() = %s, want it to keep %s", got, tt.keep)
			}
			if tt.drop != "" && strings.Contains(got, tt.drop) {
				t.Errorf("redactBody() = %s, want %s removed", got, tt.drop)
			}
		})
	}

	got := redactBody([]byte(`{"tokens":["a","b","c"]}`))
	if want := `{"tokens":["[redacted]","[redacted]","[redacted]"]}`; got != want {
		t.Errorf("redactBody() = %s, want %s", got, want)
	}

	long := strings.Repeat("a", maxBodySize+10)
	if got := redactBody([]byte(long)); !strings.HasSuffix(got, "(truncated)") {
		t.Error("long bodies should be truncated")
	}
}

func TestHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer upstream.Close()

	store := NewInMemoryStore(10)
	getID := store.Add(Exchange{Request: &Request{Method: "GET", URL: upstream.URL + "/api/polls/"}})
	postID := store.Add(Exchange{Request: &Request{Method: "POST", URL: upstream.URL + "/api/polls/x/vote/"}})

	ts := httptest.NewServer(Handler(store, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/exchanges")
	if err != nil {
		t.Fatal(err)
	}
	var list []Exchange
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 2 || list[0].ID != postID {
		t.Errorf("list = %+v, want 2 exchanges newest first", list)
	}

	resp, _ = http.Get(ts.URL + "/api/exchanges/abc")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
	resp, _ = http.Get(ts.URL + "/api/exchanges/42")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", resp.StatusCode)
	}

	resp, _ = http.Post(ts.URL+"/api/exchanges/"+strconv.FormatInt(postID, 10)+"/replay", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("replay POST status = %d, want 400", resp.StatusCode)
	}

	resp, _ = http.Post(ts.URL+"/api/exchanges/"+strconv.FormatInt(getID, 10)+"/replay", "", nil)
	var replayed struct {
		Status int             `json:"status"`
		Body   json.RawMessage `json:"body"`
	}
	json.NewDecoder(resp.Body).Decode(&replayed)
	resp.Body.Close()
	if replayed.Status != http.StatusOK || string(replayed.Body) != "[]" {
		t.Errorf("replay = %+v", replayed)
	}

	resp, _ = http.Get(ts.URL + "/api/exchanges/" + strconv.FormatInt(getID, 10) + "/replay")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET replay status = %d, want 405", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/exchanges", nil)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || store.Count() != 0 {
		t.Errorf("clear status = %d, count = %d", resp.StatusCode, store.Count())
	}
}
