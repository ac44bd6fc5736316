// Package settings persists the tunnel endpoint and distributes changes to
// the interception process.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgnsrekt/tabtunnel/internal/tunnel"
	"github.com/dgnsrekt/tabtunnel/internal/types"
)

const (
	// DefaultEndpoint is used until an endpoint has been saved.
	DefaultEndpoint = "wss://gointospace.app/wisp/"
	// EndpointKey is the persisted key holding the endpoint URL.
	EndpointKey = "proxServer"

	fileName = "settings.json"
)

// Broadcaster delivers config messages to the interception process.
type Broadcaster interface {
	Attached() bool
	Post(msg tunnel.ConfigMessage) error
}

// Store reads and writes the tunnel endpoint.
type Store struct {
	path string

	mu           sync.Mutex
	broadcaster  Broadcaster
	reload       func()
	presets      []types.Preset
	listeners    map[int]func(endpoint string)
	nextListener int
}

type Option func(*Store)

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Store) { s.broadcaster = b }
}

// WithReload sets the hard-reset hook run after every successful Set.
func WithReload(fn func()) Option {
	return func(s *Store) { s.reload = fn }
}

func WithPresets(presets []types.Preset) Option {
	return func(s *Store) { s.presets = presets }
}

// NewStore creates a Store backed by a JSON document in dir.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("settings store: mkdir %s: %w", dir, err)
	}
	s := &Store{
		path:      filepath.Join(dir, fileName),
		presets:   DefaultPresets(),
		listeners: make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetBroadcaster replaces the broadcaster. A nil broadcaster disables
// config pushes.
func (s *Store) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

func (s *Store) SetReload(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload = fn
}

// Get returns the persisted endpoint or DefaultEndpoint.
func (s *Store) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		slog.Debug("settings read failed, using default endpoint", "path", s.path, "error", err)
		return DefaultEndpoint
	}
	if v := values[EndpointKey]; v != "" {
		return v
	}
	return DefaultEndpoint
}

// ValidateEndpoint checks that endpoint uses a tunnel scheme.
func ValidateEndpoint(endpoint string) error {
	if strings.HasPrefix(endpoint, "wss://") || strings.HasPrefix(endpoint, "ws://") {
		return nil
	}
	return types.NewError(types.CodeInvalidEndpoint, fmt.Sprintf("invalid endpoint %q: must start with ws:// or wss://", endpoint), nil)
}

// Set validates and persists endpoint, notifies listeners, pushes a config
// message to the interception process when one is attached, and finally
// runs the reload hook. An invalid endpoint changes nothing.
func (s *Store) Set(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if err := ValidateEndpoint(endpoint); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.writeLocked(endpoint); err != nil {
		s.mu.Unlock()
		return err
	}
	broadcaster := s.broadcaster
	reload := s.reload
	listeners := make([]func(string), 0, len(s.listeners))
	for i := 0; i < s.nextListener; i++ {
		if fn, ok := s.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	slog.Info("tunnel endpoint saved", "endpoint", endpoint)
	for _, fn := range listeners {
		fn(endpoint)
	}

	if broadcaster != nil && broadcaster.Attached() {
		if err := broadcaster.Post(tunnel.NewConfigMessage(endpoint)); err != nil {
			slog.Warn("config broadcast failed", "endpoint", endpoint, "error", err)
		}
	}

	if reload != nil {
		reload()
	}
	return nil
}

// Subscribe registers fn to run after each successful Set.
func (s *Store) Subscribe(fn func(endpoint string)) (cancel func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) Presets() []types.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Preset(nil), s.presets...)
}

func (s *Store) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("settings store: decode %s: %w", s.path, err)
	}
	return values, nil
}

// writeLocked stores endpoint under EndpointKey, keeping other keys, via a
// temp file and rename.
func (s *Store) writeLocked(endpoint string) error {
	values, err := s.readLocked()
	if err != nil {
		slog.Warn("settings file unreadable, rewriting", "path", s.path, "error", err)
		values = map[string]string{}
	}
	values[EndpointKey] = endpoint

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("settings store: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("settings store: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("settings store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("settings store: close: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("settings store: rename: %w", err)
	}
	return nil
}
