package inspector

import (
	"sync"
	"testing"
	"time"
)

func TestNewInMemoryStore(t *testing.T) {
	store := NewInMemoryStore(100)
	if store == nil {
		t.Fatal("NewInMemoryStore returned nil")
	}
	if store.Count() != 0 {
		t.Errorf("expected 0 exchanges, got %d", store.Count())
	}
}

func TestInMemoryStore_Add(t *testing.T) {
	store := NewInMemoryStore(100)

	ex := Exchange{
		Timestamp: time.Now(),
		Request:   &Request{Method: "GET", URL: "/api/polls/"},
	}

	if id := store.Add(ex); id != 0 {
		t.Errorf("expected first ID to be 0, got %d", id)
	}
	if id := store.Add(ex); id != 1 {
		t.Errorf("expected second ID to be 1, got %d", id)
	}
	if store.Count() != 2 {
		t.Errorf("expected 2 exchanges, got %d", store.Count())
	}
}

func TestInMemoryStore_Get(t *testing.T) {
	store := NewInMemoryStore(100)

	id := store.Add(Exchange{
		Timestamp: time.Now(),
		Request:   &Request{Method: "POST", URL: "/api/polls/create/"},
	})

	retrieved, ok := store.Get(id)
	if !ok {
		t.Fatal("expected to find exchange")
	}
	if retrieved.Request.Method != "POST" {
		t.Errorf("expected POST, got %s", retrieved.Request.Method)
	}
	if retrieved.ID != id {
		t.Errorf("expected ID %d, got %d", id, retrieved.ID)
	}

	if _, ok := store.Get(999); ok {
		t.Error("expected not to find exchange with ID 999")
	}
}

func TestInMemoryStore_List(t *testing.T) {
	store := NewInMemoryStore(100)
	for i := 0; i < 3; i++ {
		store.Add(Exchange{Request: &Request{Method: "GET"}})
	}

	list := store.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(list))
	}
	// Newest first
	for i, want := range []int64{2, 1, 0} {
		if list[i].ID != want {
			t.Errorf("list[%d].ID = %d, want %d", i, list[i].ID, want)
		}
	}
}

func TestInMemoryStore_MaxSize(t *testing.T) {
	store := NewInMemoryStore(3)
	for i := 0; i < 5; i++ {
		store.Add(Exchange{Duration: int64(i)})
	}

	if store.Count() != 3 {
		t.Errorf("expected 3 exchanges (max), got %d", store.Count())
	}

	list := store.List()
	if list[0].ID != 4 {
		t.Errorf("expected newest ID 4, got %d", list[0].ID)
	}
	if list[2].ID != 2 {
		t.Errorf("expected oldest ID 2, got %d", list[2].ID)
	}
	if _, ok := store.Get(0); ok {
		t.Error("oldest exchange should have been dropped")
	}
}

func TestInMemoryStore_Clear(t *testing.T) {
	store := NewInMemoryStore(100)
	for i := 0; i < 5; i++ {
		store.Add(Exchange{})
	}

	store.Clear()
	if store.Count() != 0 {
		t.Errorf("expected 0 exchanges after clear, got %d", store.Count())
	}

	// IDs are not reset
	if id := store.Add(Exchange{}); id != 5 {
		t.Errorf("expected ID 5 after clear, got %d", id)
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore(100)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Add(Exchange{Timestamp: time.Now()})
		}()
		go func() {
			defer wg.Done()
			_ = store.List()
			_ = store.Count()
		}()
	}
	wg.Wait()

	if store.Count() != 50 {
		t.Errorf("expected 50 exchanges, got %d", store.Count())
	}
}

func TestInMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewInMemoryStore(100)
	id := store.Add(Exchange{Duration: 100})

	ex1, _ := store.Get(id)
	ex1.Duration = 999

	ex2, _ := store.Get(id)
	if ex2.Duration != 100 {
		t.Errorf("expected original duration 100, got %d", ex2.Duration)
	}
}

func TestInMemoryStore_DefaultMaxSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if store := NewInMemoryStore(size); store.maxSize != 100 {
			t.Errorf("NewInMemoryStore(%d).maxSize = %d, want 100", size, store.maxSize)
		}
	}
}
