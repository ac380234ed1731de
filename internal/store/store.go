// Package store persists decode runs in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/timing"
)

var ErrRunNotFound = errors.New("store: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	controller INTEGER NOT NULL,
	capture_path TEXT,
	capture_sha256 TEXT,
	sample_rate_hz REAL NOT NULL,
	total_frames INTEGER NOT NULL DEFAULT 0,
	total_packets INTEGER NOT NULL DEFAULT 0,
	resyncs INTEGER NOT NULL DEFAULT 0,
	premature_resets INTEGER NOT NULL DEFAULT 0,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS packets (
	run_id TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	first_frame INTEGER NOT NULL,
	last_frame INTEGER NOT NULL,
	PRIMARY KEY (run_id, ordinal),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS frames (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	packet INTEGER NOT NULL,
	idx INTEGER NOT NULL,
	start_sample INTEGER NOT NULL,
	end_sample INTEGER NOT NULL,
	speed INTEGER NOT NULL,
	value INTEGER NOT NULL,
	colors_json TEXT NOT NULL,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunInfo describes the input of a decode run.
type RunInfo struct {
	Controller   profile.Controller
	CapturePath  string
	CaptureSha   string
	SampleRateHz float64
}

type Run struct {
	ID              string             `json:"id"`
	CreatedAt       time.Time          `json:"createdAt"`
	Controller      profile.Controller `json:"controller"`
	CapturePath     string             `json:"capturePath,omitempty"`
	CaptureSha      string             `json:"captureSha256,omitempty"`
	SampleRateHz    float64            `json:"sampleRateHz"`
	Frames          int                `json:"frames"`
	Packets         int                `json:"packets"`
	Resyncs         int                `json:"resyncs"`
	PrematureResets int                `json:"prematureResets"`
	Finished        bool               `json:"finished"`
}

// BeginRun records a new run and returns a sink that writes its frames.
func (s *Store) BeginRun(info RunInfo) (*RunSink, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO runs (run_id, created_at, controller, capture_path, capture_sha256, sample_rate_hz)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), int(info.Controller), info.CapturePath, info.CaptureSha, info.SampleRateHz)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &RunSink{store: s, runID: id}, nil
}

func (s *Store) Run(id string) (Run, error) {
	row := s.db.QueryRow(`SELECT run_id, created_at, controller, COALESCE(capture_path, ''), COALESCE(capture_sha256, ''),
		sample_rate_hz, total_frames, total_packets, resyncs, premature_resets, finished_at IS NOT NULL
		FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Runs lists every run, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, created_at, controller, COALESCE(capture_path, ''), COALESCE(capture_sha256, ''),
		sample_rate_hz, total_frames, total_packets, resyncs, premature_resets, finished_at IS NOT NULL
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var created string
	var ctrl int
	if err := sc.Scan(&r.ID, &created, &ctrl, &r.CapturePath, &r.CaptureSha, &r.SampleRateHz,
		&r.Frames, &r.Packets, &r.Resyncs, &r.PrematureResets, &r.Finished); err != nil {
		return r, err
	}
	r.Controller = profile.Controller(ctrl)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return r, nil
}

// Frames loads a run's frames in decode order.
func (s *Store) Frames(runID string) ([]decoder.Frame, error) {
	rows, err := s.db.Query(`SELECT packet, idx, start_sample, end_sample, speed, colors_json
		FROM frames WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decoder.Frame
	for rows.Next() {
		var f decoder.Frame
		var speed int
		var colors string
		if err := rows.Scan(&f.Packet, &f.Index, &f.Start, &f.End, &speed, &colors); err != nil {
			return nil, err
		}
		f.Speed = timing.Speed(speed)
		if err := json.Unmarshal([]byte(colors), &f.Colors); err != nil {
			return nil, fmt.Errorf("frame colors: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Packets loads a run's packet ranges in order.
func (s *Store) Packets(runID string) ([]decoder.PacketRange, error) {
	rows, err := s.db.Query(`SELECT first_frame, last_frame FROM packets WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decoder.PacketRange
	for rows.Next() {
		var pr decoder.PacketRange
		if err := rows.Scan(&pr.First, &pr.Last); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}
