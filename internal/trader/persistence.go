package trader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// EventStore receives facts before they are applied.
type EventStore interface {
	Append(evt EventEnvelope) error

	LoadAll() ([]EventEnvelope, error)

	Close() error
}

// FileEventStore appends one JSON envelope per line.
type FileEventStore struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func NewFileEventStore(path string) (*FileEventStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &FileEventStore{path: path, file: f}, nil
}

func (s *FileEventStore) Append(evt EventEnvelope) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// LoadAll reads every envelope. A torn last line, left by a crash during
// Append, is skipped; a bad line anywhere else is an error.
func (s *FileEventStore) LoadAll() ([]EventEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek event log: %w", err)
	}
	defer s.file.Seek(0, io.SeekEnd)

	var (
		events  []EventEnvelope
		badLine int
	)
	scanner := bufio.NewScanner(s.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if badLine != 0 {
			return nil, fmt.Errorf("unmarshal event line %d", badLine)
		}
		var evt EventEnvelope
		if err := json.Unmarshal(line, &evt); err != nil {
			badLine = lineNum
			continue
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}

func (s *FileEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
