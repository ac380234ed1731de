package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"example.com/ledgate/internal/capture"
	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/encoder"
	"example.com/ledgate/internal/plot"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/store"
)

type runRecord struct {
	Type         string  `json:"type"`
	RunID        string  `json:"runId"`
	Controller   string  `json:"controller"`
	Capture      string  `json:"capture"`
	SampleRateHz float64 `json:"sampleRateHz"`
	Edges        int     `json:"edges"`
}

type summaryRecord struct {
	Type    string          `json:"type"`
	RunID   string          `json:"runId"`
	Summary decoder.Summary `json:"summary"`
}

// handleDecode decodes an uploaded capture and streams the result as NDJSON:
// a run record, then frame, packet and event records as they are found, and
// a closing summary (or error) record.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	up, err := s.readCaptureUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer up.remove()
	p, err := s.controllerParam(up.value("controller"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := up.int64Value("startSample")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	noHighSpeed, err := up.boolValue("noHighSpeed")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sha, _, err := common.Sha256OfFile(up.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("hash capture: %v", err), http.StatusInternalServerError)
		return
	}

	out := NewNDJSONWriter(w)
	var events []common.Event
	runID := uuid.NewString()
	opts := decoder.Options{
		SampleRateHz:     up.Capture.SampleRateHz,
		DisableHighSpeed: noHighSpeed || !s.allowHighSpeed,
		StartSample:      start,
		OnEvent: func(ev decoder.Event) {
			entry := ev.Entry(runID)
			events = append(events, entry)
			_ = out.WriteObject(eventRecord{Type: "event", Kind: entry.Kind, Sample: entry.Sample, Packet: entry.Packet, Detail: entry.Detail})
		},
	}
	d, err := decoder.New(up.Capture.Buffer, p, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var runSink *store.RunSink
	sinks := []decoder.Sink{&ndjsonSink{out: out, bits: p.BitsPerChannel()}}
	if s.store != nil {
		runSink, err = s.store.BeginRun(store.RunInfo{
			Controller:   p.Controller(),
			CapturePath:  up.Name,
			CaptureSha:   sha,
			SampleRateHz: up.Capture.SampleRateHz,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runID = runSink.RunID()
		sinks = append(sinks, runSink)
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Run-Id", runID)
	_ = out.WriteObject(runRecord{
		Type:         "run",
		RunID:        runID,
		Controller:   p.Name(),
		Capture:      up.Name,
		SampleRateHz: up.Capture.SampleRateHz,
		Edges:        len(up.Capture.Buffer.Edges()),
	})

	sum, runErr := d.Run(r.Context(), decoder.MultiSink(sinks...), nil)
	if runSink != nil {
		if err := runSink.Finish(sum); err != nil {
			common.Warnf("run %s: store totals: %v", runID, err)
		}
	}
	if s.events != nil && len(events) > 0 {
		if err := s.events.Append(events...); err != nil {
			common.Warnf("run %s: event log: %v", runID, err)
		}
	}
	if runErr != nil {
		common.Warnf("run %s: decode %s: %v", runID, up.Name, runErr)
		_ = out.WriteObject(map[string]any{"type": "error", "runId": runID, "error": runErr.Error()})
		return
	}
	common.Logf("run %s: %s decoded %d frames in %d packets (%d resyncs)", runID, up.Name, sum.Frames, sum.Packets, sum.Resyncs)
	_ = out.WriteObject(summaryRecord{Type: "summary", RunID: runID, Summary: sum})
}

type simulateRequest struct {
	Controller      string  `json:"controller"`
	SampleRateHz    float64 `json:"sampleRateHz"`
	Packets         int     `json:"packets"`
	FramesPerPacket int     `json:"framesPerPacket"`
	Seed            int64   `json:"seed"`
	HighSpeed       bool    `json:"highSpeed"`
	Jitter          bool    `json:"jitter"`
	Compress        bool    `json:"compress"`
}

// handleSimulate returns a generated capture file.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req simulateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	p, err := s.controllerParam(req.Controller)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rate := req.SampleRateHz
	if rate == 0 {
		rate = s.sampleRateHz
	}
	packets, frames := s.clampSimulation(req.Packets, req.FramesPerPacket)
	sim, err := encoder.Simulate(encoder.SimulationOptions{
		Controller:      p.Controller(),
		SampleRateHz:    rate,
		Packets:         packets,
		FramesPerPacket: frames,
		Seed:            req.Seed,
		HighSpeed:       req.HighSpeed,
		Jitter:          req.Jitter,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := "simulated-" + p.Controller().Slug() + ".ledcap"
	contentType := "application/octet-stream"
	if req.Compress {
		name += ".zst"
		contentType = "application/zstd"
	}
	tmp, err := os.CreateTemp(s.workDir, "sim-*-"+name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	tmp.Close()
	defer os.Remove(tmp.Name())
	if err := capture.WriteFile(tmp.Name(), &capture.Capture{SampleRateHz: rate, Buffer: sim.Buffer}); err != nil {
		http.Error(w, fmt.Sprintf("write capture: %v", err), http.StatusInternalServerError)
		return
	}
	f, err := os.Open(tmp.Name())
	if err != nil {
		http.Error(w, fmt.Sprintf("open capture: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat capture: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Packets", strconv.Itoa(len(sim.Packets)))
	io.Copy(w, f)
}

// clampSimulation applies the encoder defaults and keeps packets × frames
// within the server's limit.
func (s *Server) clampSimulation(packets, frames int) (int, int) {
	if packets <= 0 {
		packets = 1
	}
	if frames <= 0 {
		frames = encoder.DefaultFramesPerPacket
	}
	frames = min(frames, s.maxFrames)
	packets = min(packets, s.maxFrames/frames)
	return packets, frames
}

// handleHistogram renders a pulse-width histogram PNG of an uploaded capture.
func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	up, err := s.readCaptureUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer up.remove()
	p, err := s.controllerParam(up.value("controller"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bins, err := up.int64Value("bins")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pl, err := plot.Render(plot.Collect(up.Capture.Buffer, up.Capture.SampleRateHz, p), p, int(bins))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, plot.ErrNoPulses) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := plot.WritePNG(pl, w); err != nil {
		common.Warnf("histogram %s: %v", up.Name, err)
	}
}

type profileInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Layout         string   `json:"layout"`
	BitsPerChannel uint8    `json:"bitsPerChannel"`
	Channels       uint8    `json:"channels"`
	HighSpeed      bool     `json:"highSpeed"`
	ResetMinNS     float64  `json:"resetMinNs"`
	Speeds         []string `json:"speeds"`
}

func describeProfile(p profile.Profile) profileInfo {
	info := profileInfo{
		ID:             p.Controller().Slug(),
		Name:           p.Name(),
		Layout:         p.ColorLayout().String(),
		BitsPerChannel: p.BitsPerChannel(),
		Channels:       p.ChannelCount(),
		HighSpeed:      p.HighSpeedSupported(),
		ResetMinNS:     p.ResetWindow().Min * 1e9,
	}
	for _, sp := range p.Speeds() {
		info.Speeds = append(info.Speeds, sp.String())
	}
	return info
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	all := profile.All()
	out := make([]profileInfo, 0, len(all))
	for _, p := range all {
		out = append(out, describeProfile(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "run storage disabled", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.store.Runs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type runDetail struct {
	Run     store.Run             `json:"run"`
	Packets []decoder.PacketRange `json:"packets"`
	Frames  []frameRecord         `json:"frames"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if id == "" {
		s.handleRuns(w, r)
		return
	}
	if s.store == nil {
		http.Error(w, "run storage disabled", http.StatusServiceUnavailable)
		return
	}
	run, err := s.store.Run(id)
	if errors.Is(err, store.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	packets, err := s.store.Packets(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	frames, err := s.store.Frames(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var bits uint8 = 8
	if run.Controller.Valid() {
		bits = profile.Get(run.Controller).BitsPerChannel()
	}
	detail := runDetail{Run: run, Packets: packets, Frames: make([]frameRecord, 0, len(frames))}
	if detail.Packets == nil {
		detail.Packets = []decoder.PacketRange{}
	}
	for _, f := range frames {
		detail.Frames = append(detail.Frames, frameRecord{
			Type:   "frame",
			Packet: f.Packet,
			Index:  f.Index,
			Start:  f.Start,
			End:    f.End,
			Speed:  f.Speed.String(),
			Colors: hexColors(f.Colors, bits),
		})
	}
	writeJSON(w, http.StatusOK, detail)
}
