package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"example.com/ledgate/internal/decoder"
)

// RunSink writes one run's frames. Each packet is written inside a
// transaction that becomes visible at Commit.
type RunSink struct {
	store *Store
	runID string

	tx          *sql.Tx
	seq         int
	packetStart int
	packets     int

	committedSeq     int
	committedPackets int
}

func (r *RunSink) RunID() string { return r.runID }

func (r *RunSink) begin() error {
	if r.tx != nil {
		return nil
	}
	tx, err := r.store.db.Begin()
	if err != nil {
		return err
	}
	r.tx = tx
	return nil
}

func (r *RunSink) AddFrame(f decoder.Frame) error {
	if err := r.begin(); err != nil {
		return err
	}
	colors, err := json.Marshal(f.Colors)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(`INSERT INTO frames (run_id, seq, packet, idx, start_sample, end_sample, speed, value, colors_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, r.seq, f.Packet, f.Index, f.Start, f.End, int(f.Speed), int64(f.Value()), string(colors))
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	r.seq++
	return nil
}

func (r *RunSink) CommitPacketAndStartNew() error {
	if r.seq == r.packetStart {
		return nil
	}
	if err := r.begin(); err != nil {
		return err
	}
	_, err := r.tx.Exec(`INSERT INTO packets (run_id, ordinal, first_frame, last_frame) VALUES (?, ?, ?, ?)`,
		r.runID, r.packets, r.packetStart, r.seq-1)
	if err != nil {
		return fmt.Errorf("insert packet: %w", err)
	}
	r.packets++
	r.packetStart = r.seq
	return nil
}

func (r *RunSink) Commit() error {
	if r.tx == nil {
		return nil
	}
	err := r.tx.Commit()
	r.tx = nil
	if err != nil {
		return err
	}
	r.committedSeq = r.seq
	r.committedPackets = r.packets
	return nil
}

// Finish rolls back anything uncommitted and stores the run totals.
func (r *RunSink) Finish(sum decoder.Summary) error {
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
		r.seq = r.committedSeq
		r.packets = r.committedPackets
		r.packetStart = r.seq
	}
	_, err := r.store.db.Exec(`UPDATE runs SET total_frames = ?, total_packets = ?, resyncs = ?, premature_resets = ?, finished_at = ?
		WHERE run_id = ?`,
		r.committedSeq, r.committedPackets, sum.Resyncs, sum.PrematureResets, time.Now().UTC().Format(time.RFC3339Nano), r.runID)
	return err
}
