// Package inspector records the client's API traffic and serves it as JSON
// for debugging (pollctl --inspect).
package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Handler serves the recorded exchanges:
//
//	GET    /api/exchanges             list, newest first
//	GET    /api/exchanges/{id}        one exchange
//	DELETE /api/exchanges             clear
//	POST   /api/exchanges/{id}/replay re-issue a recorded GET
func Handler(store Store, client *http.Client) http.Handler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/exchanges", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.List())
	})

	mux.HandleFunc("DELETE /api/exchanges", func(w http.ResponseWriter, r *http.Request) {
		store.Clear()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/exchanges/{id}", func(w http.ResponseWriter, r *http.Request) {
		exchange, ok := lookup(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, exchange)
	})

	mux.HandleFunc("POST /api/exchanges/{id}/replay", func(w http.ResponseWriter, r *http.Request) {
		exchange, ok := lookup(w, r, store)
		if !ok {
			return
		}
		replay(w, r, client, exchange)
	})

	return mux
}

// lookup resolves the {id} path value, writing the error response itself.
func lookup(w http.ResponseWriter, r *http.Request, store Store) (*Exchange, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return nil, false
	}
	exchange, ok := store.Get(id)
	if !ok {
		http.Error(w, "Exchange not found", http.StatusNotFound)
		return nil, false
	}
	return exchange, true
}

// replay re-issues a recorded request. Only GETs are replayed so a vote or
// a poll creation is never repeated. Credentials were redacted at record
// time and are not sent.
func replay(w http.ResponseWriter, r *http.Request, client *http.Client, exchange *Exchange) {
	if exchange.Request == nil || exchange.Request.Method != http.MethodGet {
		http.Error(w, "Only GET requests can be replayed", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, exchange.Request.URL, nil)
	if err != nil {
		http.Error(w, "Failed to create request: "+err.Error(), http.StatusInternalServerError)
		return
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		http.Error(w, "Replay failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Replay failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	body := json.RawMessage(data)
	if !json.Valid(data) {
		body, _ = json.Marshal(string(data))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  resp.StatusCode,
		"headers": resp.Header,
		"body":    body,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is done. The bound address is logged so
// ":0" can be used.
func Serve(ctx context.Context, addr string, store Store) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: Handler(store, nil), ReadHeaderTimeout: 10 * time.Second}
	log.Printf("Inspector listening on http://%s/api/exchanges", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
