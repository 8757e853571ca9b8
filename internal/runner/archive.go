package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"docintake/internal/events"
)

// Archive appends bus events to a JSON-lines file.
type Archive struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

type archivedEvent struct {
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"ts"`
	Kind    string    `json:"kind"`
	Stream  string    `json:"stream"`
	RunID   string    `json:"run_id,omitempty"`
	Message string    `json:"message,omitempty"`
	Raw     string    `json:"raw,omitempty"`
	ItemID  string    `json:"item_id,omitempty"`
	Success *bool     `json:"success,omitempty"`
	Source  string    `json:"source,omitempty"`
}

// OpenArchive creates path, including parents.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event archive: %w", err)
	}
	w := bufio.NewWriter(file)
	return &Archive{file: file, w: w, enc: json.NewEncoder(w)}, nil
}

// Write is a statusbus.Handler.
func (a *Archive) Write(ev events.Event) error {
	rec := archivedEvent{
		Seq:     ev.Seq,
		Time:    ev.Time,
		Kind:    string(ev.Kind),
		Stream:  string(ev.Stream),
		RunID:   ev.RunID,
		Message: ev.Message,
	}
	if ev.Kind != events.KindLog {
		rec.Raw = ev.Raw
	}
	switch {
	case ev.Result != nil:
		rec.ItemID = ev.Result.ID
		rec.Success = &ev.Result.Success
	case ev.Completion != nil:
		rec.Success = &ev.Completion.Success
		rec.Source = string(ev.Completion.Source)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enc.Encode(rec); err != nil {
		return err
	}
	if ev.Kind == events.KindComplete || ev.Kind == events.KindError {
		return a.w.Flush()
	}
	return nil
}

// Close flushes and closes the file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	flushErr := a.w.Flush()
	closeErr := a.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
