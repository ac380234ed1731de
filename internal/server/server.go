// Package server exposes the decoder over HTTP for ledd.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/store"
)

const (
	defaultMaxUpload          = 512 << 20
	defaultMaxSimulatedFrames = 1 << 16
)

// Server holds the state shared by request handlers. Uploads are spooled to a
// private work directory that Close removes.
type Server struct {
	workDir    string
	uploadsDir string
	store      *store.Store
	events     *common.EventLog
	maxUpload  int64
	maxFrames  int

	controller     profile.Controller
	sampleRateHz   float64
	allowHighSpeed bool
}

// Options configures server creation. Store and EventLog are optional.
type Options struct {
	StorageDir     string
	Store          *store.Store
	EventLog       *common.EventLog
	MaxUploadBytes int64
	// MaxSimulatedFrames bounds packets × frames per /simulate request.
	MaxSimulatedFrames int

	// Defaults for requests that leave them out. SampleRateHz only applies
	// to CSV uploads; ledcap files carry their own rate.
	Controller     profile.Controller
	SampleRateHz   float64
	AllowHighSpeed bool
}

func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	if !opts.Controller.Valid() {
		return nil, fmt.Errorf("%w: %d", profile.ErrUnknownController, int(opts.Controller))
	}
	workDir, err := os.MkdirTemp(storageDir, "ledd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	maxFrames := opts.MaxSimulatedFrames
	if maxFrames <= 0 {
		maxFrames = defaultMaxSimulatedFrames
	}
	return &Server{
		workDir:        workDir,
		uploadsDir:     uploadsDir,
		store:          opts.Store,
		events:         opts.EventLog,
		maxUpload:      maxUpload,
		maxFrames:      maxFrames,
		controller:     opts.Controller,
		sampleRateHz:   opts.SampleRateHz,
		allowHighSpeed: opts.AllowHighSpeed,
	}, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

// controllerParam resolves an optional controller name against the default.
func (s *Server) controllerParam(raw string) (profile.Profile, error) {
	if strings.TrimSpace(raw) == "" {
		return profile.Get(s.controller), nil
	}
	c, err := profile.ParseController(raw)
	if err != nil {
		return profile.Profile{}, err
	}
	return profile.Get(c), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
