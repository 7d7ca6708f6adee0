// Package credentials holds OCR provider API keys, one per user plus the
// operator's shared key. Backends read a key through a Provider; the OCR
// service invalidates the key the provider rejected, so a bad key is never
// retried silently.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultKeyName is the key the OCR API key is stored under
const DefaultKeyName = "gemini_api_key"

// ErrMissing is returned when no credential is stored
var ErrMissing = errors.New("API key required")

// Provider supplies a credential and can be told it was rejected
type Provider interface {
	Get(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Static is an in-memory provider, used for keys coming from the environment
type Static struct {
	mu  sync.Mutex
	key string
}

// NewStatic returns a provider serving key until invalidated
func NewStatic(key string) *Static {
	return &Static{key: strings.TrimSpace(key)}
}

func (s *Static) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == "" {
		return "", ErrMissing
	}
	return s.key, nil
}

func (s *Static) Set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = strings.TrimSpace(key)
}

func (s *Static) Invalidate(ctx context.Context) error {
	s.Set("")
	return nil
}

// FileStore keeps credentials in a small JSON object on disk, one entry per key name
type FileStore struct {
	path    string
	keyName string
	// shared by every store handed out by ForOwner for the same file
	mu *sync.Mutex
}

// NewFileStore returns a store backed by path. An empty keyName uses DefaultKeyName.
func NewFileStore(path, keyName string) *FileStore {
	if keyName == "" {
		keyName = DefaultKeyName
	}
	return &FileStore{path: path, keyName: keyName, mu: &sync.Mutex{}}
}

// OwnerKey is the entry name holding owner's own key
func OwnerKey(keyName, owner string) string {
	return keyName + ":" + owner
}

// ForOwner returns a store for owner's entry in the same file
func (f *FileStore) ForOwner(owner string) *FileStore {
	return &FileStore{path: f.path, keyName: OwnerKey(f.keyName, owner), mu: f.mu}
}

// DefaultPath returns the per-user credentials file location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "legtrans", "credentials.json")
}

func (f *FileStore) Get(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	key := values[f.keyName]
	if key == "" {
		return "", ErrMissing
	}
	return key, nil
}

// Set stores key, trimming surrounding whitespace. Blank keys are rejected.
func (f *FileStore) Set(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissing
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[f.keyName] = key
	return f.write(values)
}

func (f *FileStore) Invalidate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[f.keyName]; !ok {
		return nil
	}
	delete(values, f.keyName)
	slog.Warn("Stored API key removed", "key", f.keyName, "path", f.path)
	return f.write(values)
}

func (f *FileStore) read() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return values, nil
}

func (f *FileStore) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// Chain serves the first provider that has a credential. Invalidate clears
// only the provider that served the last key.
type Chain struct {
	providers []Provider

	mu     sync.Mutex
	served Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Get(ctx context.Context) (string, error) {
	for _, p := range c.providers {
		key, err := p.Get(ctx)
		if err == nil {
			c.mu.Lock()
			c.served = p
			c.mu.Unlock()
			return key, nil
		}
		if !errors.Is(err, ErrMissing) {
			return "", err
		}
	}
	return "", ErrMissing
}

func (c *Chain) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	served := c.served
	c.served = nil
	c.mu.Unlock()
	if served == nil {
		return nil
	}
	return served.Invalidate(ctx)
}

// Keyring hands out per-user providers: the user's own entry in the key file
// first, then the operator keys shared by everyone.
type Keyring struct {
	store    *FileStore
	fallback []Provider
}

func NewKeyring(store *FileStore, fallback ...Provider) *Keyring {
	return &Keyring{store: store, fallback: fallback}
}

// Stored returns owner's own key entry
func (k *Keyring) Stored(owner string) *FileStore {
	return k.store.ForOwner(owner)
}

// HasShared reports whether an operator key is available to every user
func (k *Keyring) HasShared(ctx context.Context) bool {
	for _, p := range k.fallback {
		if _, err := p.Get(ctx); err == nil {
			return true
		}
	}
	return false
}

// Provider returns a new chain for owner. Chains are not shared between
// users, so a rejected key only affects the entry that served it.
func (k *Keyring) Provider(owner string) Provider {
	providers := append([]Provider{k.Stored(owner)}, k.fallback...)
	return NewChain(providers...)
}
