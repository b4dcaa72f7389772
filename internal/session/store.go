package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/charla-ai/charla/internal/log"
)

var (
	// ErrSessionNotFound indicates the session ID has no recorded turns.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID indicates a blank or unusable session ID.
	ErrInvalidSessionID = errors.New("invalid session ID")
)

// Store is an in-memory conversation store backed by a JSON file.
//
// All reads and writes go through a single RWMutex, so snapshots taken
// by concurrent readers never observe a partially appended exchange.
// Persistence is best-effort: a failed disk write is logged and the
// in-memory state stays authoritative for the life of the process.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]Turn

	path     string
	fileLock *flock.Flock
	logger   log.Logger
}

// NewStore loads (or initializes) a store persisted at path.
// A missing file yields an empty store. A corrupt file is renamed
// aside and the store starts fresh; history loss is logged, never fatal.
func NewStore(path string, logger log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{
		sessions: make(map[string][]Turn),
		path:     path,
		fileLock: flock.New(path + ".lock"),
		logger:   logger.With("component", "session_store"),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("locking history file: %w", err)
	}
	defer s.fileLock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading history file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var sessions map[string][]Turn
	if err := json.Unmarshal(data, &sessions); err != nil {
		// Corrupt history must not take the service down. Keep the bad
		// file for inspection and start over.
		backup := s.path + ".corrupt"
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			s.logger.Warn("failed to move corrupt history aside", "error", renameErr)
		}
		s.logger.Warn("history file is corrupt, starting fresh",
			"path", s.path, "backup", backup, "error", err)
		return nil
	}

	s.sessions = sessions
	s.logger.Debug("history loaded", "sessions", len(sessions))
	return nil
}

// Append records a turn for the given session and persists the store.
func (s *Store) Append(sessionID string, turn Turn) error {
	if !ValidID(sessionID) {
		return ErrInvalidSessionID
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turn)
	s.mu.Unlock()

	s.persist()
	return nil
}

// AppendExchange records a completed user/assistant pair atomically, so
// readers never observe the user turn without its answer. sources holds
// the titles the assistant cited, if any.
func (s *Store) AppendExchange(sessionID, userMsg, assistantMsg string, sources []string) error {
	if !ValidID(sessionID) {
		return ErrInvalidSessionID
	}
	now := time.Now().UTC()

	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID],
		Turn{Role: RoleUser, Content: userMsg, Timestamp: now},
		Turn{Role: RoleAssistant, Content: assistantMsg, Sources: sources, Timestamp: now},
	)
	s.mu.Unlock()

	s.persist()
	return nil
}

// Snapshot returns a copy of every turn recorded for the session, in
// insertion order. The copy is safe to retain across later appends.
func (s *Store) Snapshot(sessionID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	if len(turns) == 0 {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// RecentWindow returns up to n of the most recent completed exchanges,
// oldest first. Dangling user turns without an assistant reply are
// skipped.
func (s *Store) RecentWindow(sessionID string, n int) []Exchange {
	if n <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	var exchanges []Exchange
	for i := 0; i+1 < len(turns); i++ {
		if turns[i].Role == RoleUser && turns[i+1].Role == RoleAssistant {
			exchanges = append(exchanges, Exchange{
				User:      turns[i].Content,
				Assistant: turns[i+1].Content,
				Topics:    turns[i+1].Sources,
			})
			i++
		}
	}

	if len(exchanges) > n {
		exchanges = exchanges[len(exchanges)-n:]
	}
	return exchanges
}

// HasHistory reports whether the session has at least one completed
// exchange. A first-message session has none, which disables follow-up
// handling upstream.
func (s *Store) HasHistory(sessionID string) bool {
	return len(s.RecentWindow(sessionID, 1)) > 0
}

// Clear removes every turn of the session and persists the removal.
func (s *Store) Clear(sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	s.persist()
	return nil
}

// Sessions returns the known session IDs in stable order.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persist writes the store to disk. Atomic via temp file + rename so a
// crash mid-write never leaves a truncated history behind.
func (s *Store) persist() {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		s.logger.Error("failed to encode history", "error", err)
		return
	}

	if err := s.fileLock.Lock(); err != nil {
		s.logger.Error("failed to lock history file", "error", err)
		return
	}
	defer s.fileLock.Unlock() //nolint:errcheck

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.logger.Error("failed to write history", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("failed to replace history file", "path", s.path, "error", err)
	}
}
