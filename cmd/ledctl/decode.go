package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/ledgate/internal/capture"
	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/report"
	"example.com/ledgate/internal/settings"
	"example.com/ledgate/internal/store"
)

func runDecode(args []string, stdout io.Writer) error {
	fs := newFlagSet("decode")
	var af analyzerFlags
	af.register(fs)
	in := fs.String("in", "", "capture file (.ledcap, .ledcap.zst or .csv)")
	channel := fs.Int("channel", -1, "analyzer input channel recorded in reports (default from config)")
	start := fs.Int64("start", 0, "first sample to decode from")
	noHighSpeed := fs.Bool("no-high-speed", false, "only accept normal-speed timing")
	dbPath := fs.String("db", "", "SQLite database to store the run in")
	eventsPath := fs.String("events", "", "JSONL file to append resync events to")
	reportPath := fs.String("report", "", "decode report JSON output")
	pdfPath := fs.String("pdf", "", "decode report PDF output")
	quiet := fs.Bool("quiet", false, "do not print frames")
	metricsFlag := fs.Bool("metrics", false, "print decode throughput metrics")
	progressFlag := fs.Bool("progress", false, "display decode progress updates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}
	cfg, p, err := af.resolve()
	if err != nil {
		return err
	}
	st := settings.Settings{Channel: cfg.Channel, Controller: p.Controller()}
	if *channel >= 0 {
		st.Channel = *channel
	}
	if err := st.Validate(); err != nil {
		return err
	}

	c, err := capture.Open(*in, cfg.SampleRateHz)
	if err != nil {
		return err
	}
	sha, size, err := common.Sha256OfFile(*in)
	if err != nil {
		return err
	}

	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		metrics.SetTotalSamples(c.Buffer.End())
	}

	runID := uuid.NewString()
	var events []common.Event
	opts := decoder.Options{
		SampleRateHz:     c.SampleRateHz,
		DisableHighSpeed: *noHighSpeed || !cfg.HighSpeedAllowed(),
		StartSample:      *start,
		Metrics:          metrics,
		OnEvent: func(ev decoder.Event) {
			events = append(events, ev.Entry(runID))
		},
	}
	d, err := decoder.New(c.Buffer, p, opts)
	if err != nil {
		return err
	}

	res := decoder.NewResults()
	sink := decoder.Sink(res)
	var runSink *store.RunSink
	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		runSink, err = db.BeginRun(store.RunInfo{
			Controller:   p.Controller(),
			CapturePath:  *in,
			CaptureSha:   sha,
			SampleRateHz: c.SampleRateHz,
		})
		if err != nil {
			return err
		}
		runID = runSink.RunID()
		sink = decoder.MultiSink(res, runSink)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	stopProgress := func() {}
	if *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	sum, runErr := d.Run(ctx, sink, nil)
	stopProgress()
	if runSink != nil {
		if err := runSink.Finish(sum); err != nil {
			common.Warnf("store run totals: %v", err)
		}
	}
	if *eventsPath != "" && len(events) > 0 {
		if err := common.NewEventLog(*eventsPath).Append(events...); err != nil {
			common.Warnf("event log: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if !*quiet {
		var sb strings.Builder
		report.WriteText(&sb, p, res)
		io.WriteString(stdout, sb.String())
	}
	fmt.Fprintf(stdout, "run %s: %d frames in %d packets (%d unterminated), %d resyncs, %d premature resets\n",
		runID, sum.Frames, sum.Packets, sum.Unterminated, sum.Resyncs, sum.PrematureResets)
	if *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Fprintf(stdout, "decoded %s samples in %s (%s samples/s)\n",
			common.FormatSamples(snap.Samples), snap.Duration.Round(time.Millisecond), common.FormatSamples(int64(snap.SamplesPerSecond())))
	}

	if *reportPath == "" && *pdfPath == "" {
		return nil
	}
	info := report.CaptureInfo{Path: *in, Sha256: sha, Size: size, SampleRateHz: c.SampleRateHz, Samples: c.Buffer.End()}
	rep := report.Build(runID, p, st.Save(), info, res, sum, events)
	if *reportPath != "" {
		if err := report.SaveJSON(rep, *reportPath); err != nil {
			return err
		}
		common.Logf("report written to %s", *reportPath)
	}
	if *pdfPath != "" {
		if err := report.SaveDecodePDF(rep, *pdfPath); err != nil {
			return err
		}
		common.Logf("pdf written to %s", *pdfPath)
	}
	return nil
}
