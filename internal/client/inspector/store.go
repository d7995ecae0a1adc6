package inspector

import (
	"sync"
	"time"
)

// Exchange is one API call as the client saw it.
type Exchange struct {
	ID        int64     `json:"id"`
	Request   *Request  `json:"request"`
	Response  *Response `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	Duration  int64     `json:"duration_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type Request struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body,omitempty"`
	Size    int64               `json:"size"`
}

type Response struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body,omitempty"`
	Size    int64               `json:"size"`
}

// Store holds recorded exchanges.
type Store interface {
	// Add assigns the exchange an ID and returns it.
	Add(exchange Exchange) int64
	Get(id int64) (*Exchange, bool)
	// List returns all exchanges, newest first.
	List() []Exchange
	Clear()
	Count() int
}

// InMemoryStore keeps the newest maxSize exchanges.
type InMemoryStore struct {
	mu        sync.RWMutex
	exchanges []Exchange
	nextID    int64
	maxSize   int
}

func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &InMemoryStore{
		exchanges: make([]Exchange, 0, maxSize),
		maxSize:   maxSize,
	}
}

func (s *InMemoryStore) Add(exchange Exchange) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	exchange.ID = s.nextID
	s.nextID++

	// Oldest first internally; the oldest is dropped when full
	if len(s.exchanges) >= s.maxSize {
		copy(s.exchanges, s.exchanges[1:])
		s.exchanges[len(s.exchanges)-1] = exchange
	} else {
		s.exchanges = append(s.exchanges, exchange)
	}
	return exchange.ID
}

// Get returns a copy of the exchange with id.
func (s *InMemoryStore) Get(id int64) (*Exchange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.exchanges {
		if s.exchanges[i].ID == id {
			ex := s.exchanges[i]
			return &ex, true
		}
	}
	return nil, false
}

// List returns a shallow copy; Request and Response are shared.
func (s *InMemoryStore) List() []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Exchange, len(s.exchanges))
	for i, ex := range s.exchanges {
		out[len(s.exchanges)-1-i] = ex
	}
	return out
}

// Clear drops every exchange. IDs keep counting.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = s.exchanges[:0]
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exchanges)
}
