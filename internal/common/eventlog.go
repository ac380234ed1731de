package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one decoder diagnostic, such as a resync or a reset that arrived
// in the middle of a channel word.
type Event struct {
	RunID  string    `json:"runId,omitempty"`
	Kind   string    `json:"kind"`
	Sample int64     `json:"sample"`
	Packet int       `json:"packet"`
	Detail string    `json:"detail,omitempty"`
	Ts     time.Time `json:"ts"`
}

// EventLog provides append-only access to a JSONL event file.
type EventLog struct {
	path string
	mu   sync.Mutex
}

func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

func (l *EventLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes entries to the log, one JSON object per line.
func (l *EventLog) Append(entries ...Event) error {
	if l == nil {
		return errors.New("nil event log")
	}
	if len(entries) == 0 {
		return nil
	}
	var buf []byte
	for _, entry := range entries {
		if entry.Kind == "" {
			return errors.New("event missing kind")
		}
		if entry.Ts.IsZero() {
			entry.Ts = time.Now().UTC()
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// ReadEventLog loads every entry from the supplied JSONL file.
func ReadEventLog(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []Event
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Event
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
