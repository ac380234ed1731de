package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"
)

type Metrics struct {
	mu              sync.Mutex
	start           time.Time
	end             time.Time
	samples         int64
	totalSamples    int64
	frames          int64
	packets         int64
	resyncs         int64
	prematureResets int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddPacket records a committed packet holding frames LEDs.
func (m *Metrics) AddPacket(frames int) {
	if frames <= 0 {
		return
	}
	m.mu.Lock()
	m.frames += int64(frames)
	m.packets++
	m.mu.Unlock()
}

// SetPosition records how far into the capture the decoder has read.
func (m *Metrics) SetPosition(sample int64) {
	m.mu.Lock()
	if sample > m.samples {
		m.samples = sample
	}
	m.mu.Unlock()
}

func (m *Metrics) IncResync() {
	m.mu.Lock()
	m.resyncs++
	m.mu.Unlock()
}

func (m *Metrics) IncPrematureReset() {
	m.mu.Lock()
	m.prematureResets++
	m.mu.Unlock()
}

func (m *Metrics) SetTotalSamples(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalSamples = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:        m.elapsedLocked(),
		Samples:         m.samples,
		TotalSamples:    m.totalSamples,
		Frames:          m.frames,
		Packets:         m.packets,
		Resyncs:         m.resyncs,
		PrematureResets: m.prematureResets,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration        time.Duration `json:"duration"`
	Samples         int64         `json:"samples"`
	TotalSamples    int64         `json:"totalSamples"`
	Frames          int64         `json:"frames"`
	Packets         int64         `json:"packets"`
	Resyncs         int64         `json:"resyncs"`
	PrematureResets int64         `json:"prematureResets"`
}

func (s MetricsSnapshot) SamplesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Samples) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalSamples <= 0 {
		return 0
	}
	ratio := float64(s.Samples) / float64(s.TotalSamples)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// FormatSamples renders a sample count with a metric suffix.
func FormatSamples(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d", n)
	}
	div := float64(unit)
	exp := 0
	for v := float64(n) / div; v >= unit && exp < 3; v /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"k", "M", "G", "T"}
	return fmt.Sprintf("%.2f%s", float64(n)/div, suffixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	rate := FormatSamples(int64(s.SamplesPerSecond()))
	if s.TotalSamples > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s samples) %s samples/s, %d frames, %d resyncs",
			pct, FormatSamples(s.Samples), FormatSamples(s.TotalSamples), rate, s.Frames, s.Resyncs)
	}
	return fmt.Sprintf("Processed: %s samples %s samples/s, %d frames", FormatSamples(s.Samples), rate, s.Frames)
}

func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
