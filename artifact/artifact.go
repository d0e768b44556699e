// Package artifact stores rendered report documents. The in-memory store
// keeps every version of a named artifact; rendered reports are addressed by
// a stable path of the form mem://<name>@<version>.
package artifact

import (
	"fmt"
	"sort"
	"sync"
)

// Artifact is one stored document version.
type Artifact struct {
	Name     string
	Version  int
	MimeType string
	Data     []byte
}

// InMemoryStore is a thread-safe versioned artifact store.
type InMemoryStore struct {
	mu       sync.RWMutex
	versions map[string][]Artifact
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{versions: make(map[string][]Artifact)}
}

// Save stores a new version of the named artifact and returns its path.
// Versions start at 1 and grow monotonically per name.
func (s *InMemoryStore) Save(name, mimeType string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := len(s.versions[name]) + 1
	stored := make([]byte, len(data))
	copy(stored, data)
	s.versions[name] = append(s.versions[name], Artifact{
		Name:     name,
		Version:  version,
		MimeType: mimeType,
		Data:     stored,
	})
	return Path(name, version)
}

// Latest returns the most recent version of the named artifact.
func (s *InMemoryStore) Latest(name string) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.versions[name]
	if len(all) == 0 {
		return Artifact{}, false
	}
	return clone(all[len(all)-1]), true
}

// Version returns a specific version of the named artifact.
func (s *InMemoryStore) Version(name string, version int) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.versions[name] {
		if a.Version == version {
			return clone(a), true
		}
	}
	return Artifact{}, false
}

// Names lists stored artifact names in sorted order.
func (s *InMemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path builds the stable address of an artifact version.
func Path(name string, version int) string {
	return fmt.Sprintf("mem://%s@%d", name, version)
}

func clone(a Artifact) Artifact {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	a.Data = data
	return a
}
