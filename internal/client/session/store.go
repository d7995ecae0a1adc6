package session

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"pollctl/internal/auth"

	"gopkg.in/yaml.v3"
)

// Names of the persisted values.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
	KeyUser    = "user"
)

// Values is the persisted session blob. User holds the serialized user.
type Values struct {
	Access  string
	Refresh string
	User    string
}

func (v Values) Empty() bool {
	return v.Access == "" && v.Refresh == "" && v.User == ""
}

// Store reads and writes the session blob as a whole.
type Store interface {
	Load() (Values, error)
	Save(Values) error
	Clear() error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values Values
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values, nil
}

func (m *MemoryStore) Save(v Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = v
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.Save(Values{})
}

// FileStore keeps the session in a YAML file with every value sealed.
// A file that cannot be opened with the current key reads as no session.
type FileStore struct {
	path   string
	sealer *auth.Sealer
}

func NewFileStore(path string, sealer *auth.Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

func (f *FileStore) Load() (Values, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Values{}, nil
	}
	if err != nil {
		return Values{}, err
	}

	var sealed map[string]string
	if err := yaml.Unmarshal(data, &sealed); err != nil {
		log.Printf("Ignoring unreadable session file %s: %v", f.path, err)
		return Values{}, nil
	}

	var v Values
	for name, dst := range map[string]*string{KeyAccess: &v.Access, KeyRefresh: &v.Refresh, KeyUser: &v.User} {
		raw, ok := sealed[name]
		if !ok || raw == "" {
			continue
		}
		value, err := f.sealer.Open(name, raw)
		if err != nil {
			log.Printf("Ignoring session file %s: %v", f.path, err)
			return Values{}, nil
		}
		*dst = value
	}
	return v, nil
}

func (f *FileStore) Save(v Values) error {
	sealed := make(map[string]string, 3)
	for name, value := range map[string]string{KeyAccess: v.Access, KeyRefresh: v.Refresh, KeyUser: v.User} {
		if value == "" {
			continue
		}
		s, err := f.sealer.Seal(name, value)
		if err != nil {
			return fmt.Errorf("failed to seal %s: %w", name, err)
		}
		sealed[name] = s
	}

	data, err := yaml.Marshal(sealed)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	// Write then rename so readers never see a partial file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
