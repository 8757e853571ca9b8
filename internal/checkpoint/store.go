package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"docintake/internal/fileutil"
	"docintake/internal/logging"
)

const (
	lockRetryDelay = 25 * time.Millisecond
	lockTimeout    = 10 * time.Second
)

// ErrEmptyID rejects blank identifiers.
var ErrEmptyID = errors.New("checkpoint id cannot be empty")

// errCorrupt marks checkpoint content that is not a JSON array of strings.
var errCorrupt = errors.New("checkpoint content is not a JSON array of strings")

// Store is an append-only, deduplicated, ordered set of completed ids.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
	lock   *flock.Flock
}

// New returns a store backed by path. The file is created on first Append.
func New(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("checkpoint path is required")
	}
	return &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "checkpoint"),
		lock:   flock.New(path + ".lock"),
	}, nil
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the completed ids in append order. Absent or corrupt data
// yields an empty slice.
func (s *Store) Load() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.read()
	if err != nil {
		s.warnUnreadable(err)
		return []string{}
	}
	return ids
}

// Contains reports whether id is already recorded.
func (s *Store) Contains(id string) bool {
	id = strings.TrimSpace(id)
	for _, existing := range s.Load() {
		if existing == id {
			return true
		}
	}
	return false
}

// Pending filters ids down to the ones not yet recorded, preserving order.
func (s *Store) Pending(ids []string) []string {
	done := make(map[string]struct{})
	for _, id := range s.Load() {
		done[id] = struct{}{}
	}
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := done[strings.TrimSpace(id)]; ok {
			continue
		}
		pending = append(pending, id)
	}
	return pending
}

// Append records id. Appending an id that is already present is a no-op.
// The file is re-read under the cross-process lock so ids written by the
// worker itself are preserved. A corrupt file is moved aside and replaced;
// any other read failure is returned and the file is left untouched.
func (s *Store) Append(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}

	return s.withLock(func() error {
		ids, err := s.read()
		if err != nil {
			if !errors.Is(err, errCorrupt) {
				return err
			}
			s.warnUnreadable(err)
			s.quarantine()
			ids = nil
		}
		for _, existing := range ids {
			if existing == id {
				return nil
			}
		}
		if err := s.write(append(ids, id)); err != nil {
			return err
		}
		s.logger.Debug("checkpoint appended",
			logging.String("id", id),
			logging.Int("entry_count", len(ids)+1),
		)
		return nil
	})
}

// Reset clears the checkpoint. Only explicit operator action should call it.
func (s *Store) Reset() error {
	return s.withLock(func() error {
		if err := s.write([]string{}); err != nil {
			return err
		}
		s.logger.Info("checkpoint reset",
			logging.String("path", s.path),
			logging.String(logging.FieldEventType, "checkpoint_reset"),
		)
		return nil
	})
}

func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire checkpoint lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("acquire checkpoint lock: %s is held by another process", s.lock.Path())
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return fn()
}

// read parses the file. Missing files are empty; duplicates and blanks are
// dropped keeping first occurrence.
func (s *Store) read() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []string{}, nil
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) write(ids []string) error {
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// quarantine moves an unparseable file aside before it is overwritten.
func (s *Store) quarantine() {
	if _, err := os.Stat(s.path); err != nil {
		return
	}
	aside := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Debug("checkpoint quarantine failed", logging.Error(err))
		return
	}
	s.logger.Info("corrupt checkpoint moved aside",
		logging.String("path", aside),
		logging.String(logging.FieldEventType, "checkpoint_quarantined"),
	)
}

func (s *Store) warnUnreadable(err error) {
	logging.WarnWithContext(s.logger, "checkpoint unreadable; treating as empty", "checkpoint_unreadable",
		logging.String("path", s.path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect or reset the checkpoint with 'docintake checkpoint reset'"),
		logging.String(logging.FieldImpact, "previously completed documents will be processed again"),
	)
}
