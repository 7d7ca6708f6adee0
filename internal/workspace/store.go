package workspace

import (
	"sync"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/ocr"
	"github.com/3ltranslate/legtrans/internal/translation"
)

// Store keeps one workspace per owner
type Store struct {
	workspaces map[string]*Workspace
	ocr        *ocr.Service
	translator *translation.Service
	keys       *credentials.Keyring
	mu         sync.RWMutex
}

func NewStore(ocrSvc *ocr.Service, translator *translation.Service) *Store {
	return &Store{
		workspaces: make(map[string]*Workspace),
		ocr:        ocrSvc,
		translator: translator,
	}
}

// WithKeys gives every new workspace its owner's credential chain from keys
func (s *Store) WithKeys(keys *credentials.Keyring) *Store {
	s.keys = keys
	return s
}

func (s *Store) Get(owner string) (*Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, exists := s.workspaces[owner]
	return ws, exists
}

// GetOrCreate returns the owner's workspace, creating an empty one if needed
func (s *Store) GetOrCreate(owner string) *Workspace {
	if ws, ok := s.Get(owner); ok {
		return ws
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.workspaces[owner]; ok {
		return ws
	}
	ws := New(owner, s.ocr, s.translator)
	if s.keys != nil {
		ws.credentials = s.keys.Provider(owner)
	}
	s.workspaces[owner] = ws
	return ws
}

func (s *Store) Delete(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workspaces, owner)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workspaces)
}
