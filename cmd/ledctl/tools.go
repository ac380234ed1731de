package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"example.com/ledgate/internal/capture"
	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/encoder"
	"example.com/ledgate/internal/plot"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/report"
	"example.com/ledgate/internal/settings"
	"example.com/ledgate/internal/timing"
)

func runSimulate(args []string, stdout io.Writer) error {
	fs := newFlagSet("simulate")
	var af analyzerFlags
	af.register(fs)
	out := fs.String("out", "", "capture output (.ledcap, .ledcap.zst)")
	packets := fs.Int("packets", 4, "number of packets")
	frames := fs.Int("frames", encoder.DefaultFramesPerPacket, "frames per packet")
	seed := fs.Int64("seed", 1, "random seed")
	highSpeed := fs.Bool("high-speed", false, "use high-speed timing")
	jitter := fs.Bool("jitter", false, "randomize pulse widths within tolerance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("out", *out); err != nil {
		return err
	}
	cfg, p, err := af.resolve()
	if err != nil {
		return err
	}
	sim, err := encoder.Simulate(encoder.SimulationOptions{
		Controller:      p.Controller(),
		SampleRateHz:    cfg.SampleRateHz,
		Packets:         *packets,
		FramesPerPacket: *frames,
		Seed:            *seed,
		HighSpeed:       *highSpeed,
		Jitter:          *jitter,
	})
	if err != nil {
		return err
	}
	if err := capture.WriteFile(*out, &capture.Capture{SampleRateHz: cfg.SampleRateHz, Buffer: sim.Buffer}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s: %s, %d packets x %d frames, %s samples at %s Hz\n",
		*out, p.Name(), len(sim.Packets), *frames, common.FormatSamples(sim.Buffer.End()), common.FormatSamples(int64(cfg.SampleRateHz)))
	return nil
}

func runProfiles(args []string, stdout io.Writer) error {
	fs := newFlagSet("profiles")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	all := profile.All()
	if *asJSON {
		type row struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Layout    string `json:"layout"`
			Bits      uint8  `json:"bitsPerChannel"`
			Channels  uint8  `json:"channels"`
			HighSpeed bool   `json:"highSpeed"`
			Reset     string `json:"reset"`
		}
		rows := make([]row, 0, len(all))
		for _, p := range all {
			rows = append(rows, row{
				ID:        p.Controller().Slug(),
				Name:      p.Name(),
				Layout:    p.ColorLayout().String(),
				Bits:      p.BitsPerChannel(),
				Channels:  p.ChannelCount(),
				HighSpeed: p.HighSpeedSupported(),
				Reset:     p.ResetWindow().String(),
			})
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLAYOUT\tBITS\tCHANNELS\tHIGH SPEED\tT0H\tT1H\tRESET")
	for _, p := range all {
		hs := "no"
		if p.HighSpeedSupported() {
			hs = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			p.Controller().Slug(), p.Name(), p.ColorLayout(), p.BitsPerChannel(), p.ChannelCount(), hs,
			p.Lookup(0, timing.SpeedNormal).High, p.Lookup(1, timing.SpeedNormal).High, p.ResetWindow())
	}
	return w.Flush()
}

func decodeCapture(af *analyzerFlags, in string) (*capture.Capture, profile.Profile, *decoder.Results, error) {
	cfg, p, err := af.resolve()
	if err != nil {
		return nil, p, nil, err
	}
	c, err := capture.Open(in, cfg.SampleRateHz)
	if err != nil {
		return nil, p, nil, err
	}
	res, _, err := decoder.Decode(context.Background(), c.Buffer, p, decoder.Options{
		SampleRateHz:     c.SampleRateHz,
		DisableHighSpeed: !cfg.HighSpeedAllowed(),
	})
	return c, p, res, err
}

func runExport(args []string, stdout io.Writer) error {
	fs := newFlagSet("export")
	var af analyzerFlags
	af.register(fs)
	in := fs.String("in", "", "capture file")
	out := fs.String("out", "", "CSV output")
	trigger := fs.Int64("trigger", 0, "sample that time zero refers to")
	baseFlag := fs.String("base", "hex", "value display base (hex or dec)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}
	if err := required("out", *out); err != nil {
		return err
	}
	base, err := report.ParseBase(*baseFlag)
	if err != nil {
		return err
	}
	c, p, res, err := decodeCapture(&af, *in)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	err = report.ExportCSV(context.Background(), f, res.Frames, report.ExportOptions{
		SampleRateHz:  c.SampleRateHz,
		TriggerSample: *trigger,
		Bits:          p.BitsPerChannel(),
		Base:          base,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d frames to %s\n", len(res.Frames), *out)
	return nil
}

func runHistogram(args []string, stdout io.Writer) error {
	fs := newFlagSet("histogram")
	var af analyzerFlags
	af.register(fs)
	in := fs.String("in", "", "capture file")
	out := fs.String("out", "pulses.png", "image output (.png, .svg, .pdf)")
	bins := fs.Int("bins", 60, "histogram bins")
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
	c, err := capture.Open(*in, cfg.SampleRateHz)
	if err != nil {
		return err
	}
	w := plot.Collect(c.Buffer, c.SampleRateHz, p)
	pl, err := plot.Render(w, p, *bins)
	if err != nil {
		return err
	}
	if err := plot.SavePNG(pl, *out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s: %d high, %d low, %d reset phases\n", *out, len(w.High), len(w.Low), w.Resets)
	return nil
}

func runReport(args []string, stdout io.Writer) error {
	fs := newFlagSet("report")
	in := fs.String("in", "", "decode report JSON")
	pdfPath := fs.String("pdf", "", "render the report as PDF")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}
	rep, err := report.LoadJSON(*in)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run %s (%s), generated %s\n", rep.RunID, rep.Controller, rep.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(stdout, "  capture: %s (%s samples at %s Hz)\n", rep.Capture.Path,
		common.FormatSamples(rep.Capture.Samples), common.FormatSamples(int64(rep.Capture.SampleRateHz)))
	fmt.Fprintf(stdout, "  frames: %d  packets: %d  unterminated: %d  resyncs: %d  premature resets: %d\n",
		rep.Summary.Frames, rep.Summary.Packets, rep.Summary.Unterminated, rep.Summary.Resyncs, rep.Summary.PrematureResets)
	for _, ev := range rep.Events {
		fmt.Fprintf(stdout, "  %s at sample %d: %s\n", ev.Kind, ev.Sample, ev.Detail)
	}
	if *pdfPath != "" {
		if err := report.SaveDecodePDF(rep, *pdfPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "pdf written to %s\n", *pdfPath)
	}
	return nil
}

func runSettings(args []string, stdout io.Writer) error {
	fs := newFlagSet("settings")
	controller := fs.String("controller", "", "LED controller")
	channel := fs.Int("channel", 0, "analyzer input channel")
	load := fs.String("load", "", "archive text to load and describe")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *load != "" {
		st, err := settings.Load(*load)
		if err != nil {
			return err
		}
		if err := st.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "channel %d, controller %s\n", st.Channel, st.Controller)
		return nil
	}
	st := settings.Default()
	st.Channel = *channel
	if strings.TrimSpace(*controller) != "" {
		c, err := profile.ParseController(*controller)
		if err != nil {
			return err
		}
		st.Controller = c
	}
	if err := st.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, st.Save())
	return nil
}
