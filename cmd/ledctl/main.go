package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/config"
	"example.com/ledgate/internal/profile"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	if name := os.Getenv("LEDCTL_LOG_FILE"); name != "" {
		closer, err := logToFile(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file: %v\n", err)
			os.Exit(2)
		}
		defer closer.Close()
	}
	var run func([]string, io.Writer) error
	switch os.Args[1] {
	case "decode":
		run = runDecode
	case "simulate":
		run = runSimulate
	case "profiles":
		run = runProfiles
	case "export":
		run = runExport
	case "histogram":
		run = runHistogram
	case "report":
		run = runReport
	case "settings":
		run = runSettings
	default:
		usage()
		return
	}
	if err := run(os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`ledctl %s (built %s) <command> [options]

Commands:
  decode    --in <capture> [--controller <name>] [--rate <hz>] [--config <file>] [--start <sample>] [--no-high-speed]
            [--db <ledgate.db>] [--events <events.jsonl>] [--report <report.json>] [--pdf <report.pdf>] [--quiet] [--metrics] [--progress]
  simulate  --out <capture.ledcap[.zst]> [--controller <name>] [--rate <hz>] [--packets <n>] [--frames <n>] [--seed <n>] [--high-speed] [--jitter]
  profiles  [--json]
  export    --in <capture> --out <frames.csv> [--controller <name>] [--rate <hz>] [--trigger <sample>] [--base hex|dec]
  histogram --in <capture> --out <hist.png> [--controller <name>] [--rate <hz>] [--bins <n>]
  report    --in <report.json> [--pdf <report.pdf>]
  settings  [--controller <name>] [--channel <n>] | --load "<archive>"

Capture files ending in .csv are read as logic-analyzer exports at --rate.
Set LEDCTL_LOG_FILE to also write logs to a rotated file.
`, version, buildDate)
}

func logToFile(path string) (io.Closer, error) {
	w, err := common.RotatingFile(common.RotateOptions{
		Directory:  filepath.Dir(path),
		Name:       filepath.Base(path),
		MaxSizeMB:  25,
		MaxAgeDays: 7,
		MaxBackups: 5,
	})
	if err != nil {
		return nil, err
	}
	common.SetOutput(io.MultiWriter(os.Stderr, w))
	return w, nil
}

// analyzerFlags are shared by every command that reads a capture.
type analyzerFlags struct {
	configPath string
	controller string
	rate       float64
}

func (a *analyzerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.configPath, "config", "", "configuration file (.yaml or .toml)")
	fs.StringVar(&a.controller, "controller", "", "LED controller (default from config, else ws2811)")
	fs.Float64Var(&a.rate, "rate", 0, "sample rate in Hz for CSV captures")
}

// resolve merges the flags over the configuration file.
func (a *analyzerFlags) resolve() (config.Config, profile.Profile, error) {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return cfg, profile.Profile{}, err
		}
	}
	if a.controller != "" {
		cfg.Controller = a.controller
	}
	if a.rate > 0 {
		cfg.SampleRateHz = a.rate
	}
	st, err := cfg.Settings()
	if err != nil {
		return cfg, profile.Profile{}, err
	}
	return cfg, st.Profile(), nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("required: --%s", name)
	}
	return nil
}
