package inspector

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"pollctl/internal/client/events"
)

// maxBodySize caps how much of each body is kept.
const maxBodySize = 64 * 1024

const redacted = "[redacted]"

var secretHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

var secretFields = map[string]bool{
	"password":    true,
	"password2":   true,
	"access":      true,
	"refresh":     true,
	"voter_token": true,
	"tokens":      true,
}

// Recorder is an http.RoundTripper that stores every exchange with
// credentials redacted and publishes EventRequestComplete.
type Recorder struct {
	Base  http.RoundTripper
	Store Store
	Bus   *events.Bus
}

func NewRecorder(base http.RoundTripper, store Store, bus *events.Bus) *Recorder {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Recorder{Base: base, Store: store, Bus: bus}
}

func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		reqBody = data
		req.Body = io.NopCloser(bytes.NewReader(data))
	}

	if r.Bus != nil {
		r.Bus.Publish(events.Event{
			Type: events.EventRequestStart,
			Data: events.RequestData{Method: req.Method, Path: req.URL.Path},
		})
	}

	start := time.Now()
	resp, err := r.Base.RoundTrip(req)
	duration := time.Since(start)

	ex := Exchange{
		Timestamp: start,
		Duration:  duration.Milliseconds(),
		Request: &Request{
			Method:  req.Method,
			URL:     req.URL.String(),
			Headers: redactHeaders(req.Header),
			Body:    redactBody(reqBody),
			Size:    int64(len(reqBody)),
		},
	}

	status := 0
	var size int64
	if err != nil {
		ex.Error = err.Error()
	} else {
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		if readErr != nil {
			ex.Error = readErr.Error()
		}
		status = resp.StatusCode
		size = int64(len(respBody))
		ex.Response = &Response{
			Status:  resp.StatusCode,
			Headers: redactHeaders(resp.Header),
			Body:    redactBody(respBody),
			Size:    size,
		}
	}

	if r.Store != nil {
		r.Store.Add(ex)
	}
	if r.Bus != nil {
		r.Bus.Publish(events.Event{
			Type: events.EventRequestComplete,
			Data: events.RequestData{
				Method:   req.Method,
				Path:     req.URL.Path,
				Status:   status,
				Duration: duration,
				Bytes:    size,
			},
		})
	}
	return resp, err
}

func redactHeaders(h http.Header) map[string][]string {
	out := h.Clone()
	if out == nil {
		return map[string][]string{}
	}
	for _, name := range secretHeaders {
		if _, ok := out[name]; ok {
			out[name] = []string{redacted}
		}
	}
	return out
}

// redactBody masks credential and token fields anywhere in a JSON body
// and truncates anything too large.
func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err == nil && redactValue(doc) {
		if data, err := json.Marshal(doc); err == nil {
			body = data
		}
	}

	if len(body) > maxBodySize {
		return string(body[:maxBodySize]) + "\n... (truncated)"
	}
	return string(body)
}

// redactValue masks secret fields in place and reports whether it changed
// anything. Secret lists keep their length so token counts stay visible.
func redactValue(v interface{}) bool {
	changed := false
	switch v := v.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if !secretFields[key] {
				changed = redactValue(child) || changed
				continue
			}
			if list, ok := child.([]interface{}); ok {
				for i := range list {
					list[i] = redacted
				}
			} else {
				v[key] = redacted
			}
			changed = true
		}
	case []interface{}:
		for _, child := range v {
			changed = redactValue(child) || changed
		}
	}
	return changed
}
