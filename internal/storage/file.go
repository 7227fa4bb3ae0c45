package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// maxLineSize bounds a single audit line; events are small and fixed-shape.
const maxLineSize = 64 * 1024

// FileRecorder appends events as JSON lines to a single file. The file is
// opened once in append mode and stays open until Close.
type FileRecorder struct {
	path string

	mu  sync.Mutex
	out *os.File
	enc *json.Encoder
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileRecorder{path: path, out: f, enc: json.NewEncoder(f)}, nil
}

func (r *FileRecorder) AppendEvent(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return os.ErrClosed
	}
	if err := r.enc.Encode(event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// LoadEvents reads the whole log. Lines that do not decode are skipped.
func (r *FileRecorder) LoadEvents() ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	return readEvents(f)
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return nil
	}
	err := r.out.Close()
	r.out, r.enc = nil, nil
	return err
}

func readEvents(rd io.Reader) ([]Event, error) {
	s := bufio.NewScanner(rd)
	s.Buffer(make([]byte, 0, 4096), maxLineSize)
	var events []Event
	for s.Scan() {
		line := s.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return events, nil
}
