// Package contextstore is an in-memory context manager. It keeps one
// address/value namespace per open context and answers GET and SET frames, so
// it can sit behind a stream.Dispatcher in tests or behind a connect handler
// in a development server.
package contextstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/statecontext/protocol"
	"github.com/tailored-agentic-units/statecontext/stream"
)

// Store is safe for concurrent use.
type Store struct {
	namespaces []string
	contexts   map[string]map[string][]byte
	mu         sync.RWMutex
	logger     *slog.Logger
}

func New(cfg Config) *Store {
	defaults := DefaultConfig()
	defaults.Merge(&cfg)

	s := &Store{
		namespaces: slices.Clone(defaults.Namespaces),
		contexts:   make(map[string]map[string][]byte),
		logger:     defaults.Logger,
	}
	for _, id := range defaults.Contexts {
		s.Open(id)
	}
	return s
}

// Create opens a context under a new UUIDv7 identifier.
func (s *Store) Create() string {
	id := uuid.Must(uuid.NewV7()).String()
	s.Open(id)
	return id
}

// Open makes contextID available. Opening an open context keeps its values.
func (s *Store) Open(contextID string) error {
	if contextID == "" {
		return ErrEmptyContextID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contexts[contextID]; !exists {
		s.contexts[contextID] = make(map[string][]byte)
		s.logger.Debug("context opened", slog.String("context_id", contextID))
	}
	return nil
}

// Close discards contextID and its values.
func (s *Store) Close(contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contexts[contextID]; !exists {
		return fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}
	delete(s.contexts, contextID)
	s.logger.Debug("context closed", slog.String("context_id", contextID))
	return nil
}

// Contexts returns the open context IDs, sorted.
func (s *Store) Contexts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns one entry per requested address that holds a value, in request
// order without repeats. Addresses outside the store's namespaces are skipped
// and reported through StatusAuthorizationError.
func (s *Store) Get(contextID string, addresses []string) ([]protocol.Entry, protocol.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, exists := s.contexts[contextID]
	if !exists {
		return nil, protocol.StatusUnset, fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}

	status := protocol.StatusOK
	seen := make(map[string]bool, len(addresses))
	var entries []protocol.Entry
	for _, addr := range addresses {
		if seen[addr] {
			continue
		}
		seen[addr] = true

		if !s.permitted(addr) {
			status = protocol.StatusAuthorizationError
			continue
		}
		if data, ok := values[addr]; ok {
			entries = append(entries, protocol.Entry{Address: addr, Data: slices.Clone(data)})
		}
	}
	return entries, status, nil
}

// Set applies entries in order, so a repeated address keeps its last value.
// It returns each written address once, in first-write order. Entries outside
// the store's namespaces are not written.
func (s *Store) Set(contextID string, entries []protocol.Entry) ([]string, protocol.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, exists := s.contexts[contextID]
	if !exists {
		return nil, protocol.StatusUnset, fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}

	status := protocol.StatusOK
	seen := make(map[string]bool, len(entries))
	var written []string
	for _, entry := range entries {
		if !s.permitted(entry.Address) {
			status = protocol.StatusAuthorizationError
			s.logger.Warn(
				"write outside namespaces",
				slog.String("context_id", contextID),
				slog.String("address", entry.Address),
			)
			continue
		}
		values[entry.Address] = slices.Clone(entry.Data)
		if !seen[entry.Address] {
			seen[entry.Address] = true
			written = append(written, entry.Address)
		}
	}
	return written, status, nil
}

// Handler serves GET and SET frames against the store.
func (s *Store) Handler() stream.Handler {
	return func(ctx context.Context, kind protocol.MessageType, payload []byte) ([]byte, error) {
		switch kind {
		case protocol.MessageTypeGetRequest:
			var req protocol.GetRequest
			if err := req.Unmarshal(payload); err != nil {
				return nil, err
			}
			entries, status, err := s.Get(req.ContextID, req.Addresses)
			if err != nil {
				return nil, err
			}
			resp := protocol.GetResponse{Entries: entries, Status: status}
			return resp.Marshal(), nil

		case protocol.MessageTypeSetRequest:
			var req protocol.SetRequest
			if err := req.Unmarshal(payload); err != nil {
				return nil, err
			}
			written, status, err := s.Set(req.ContextID, req.Entries)
			if err != nil {
				return nil, err
			}
			resp := protocol.SetResponse{Addresses: written, Status: status}
			return resp.Marshal(), nil

		default:
			return nil, fmt.Errorf("%w: %s", stream.ErrUnknownMessageType, kind)
		}
	}
}

func (s *Store) permitted(address string) bool {
	if len(s.namespaces) == 0 {
		return true
	}
	for _, prefix := range s.namespaces {
		if strings.HasPrefix(address, prefix) {
			return true
		}
	}
	return false
}
