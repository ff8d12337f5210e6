package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"histoseg/internal/config"
	"histoseg/internal/logger"
	"histoseg/internal/models"
	"histoseg/internal/pipeline"
	"histoseg/internal/pipeline/stages"
	"histoseg/internal/store"
)

const (
	AppName    = "histoseg"
	AppVersion = "1.0.0"
)

const usage = `usage: histoseg <command> [flags]

commands:
  extract   build the colour histogram of a region and write it as YAML
  segment   label every pixel as object or background
  runs      list the runs recorded in a ledger database
  version   print the version

run "histoseg <command> -h" for the flags of a command.
`

var errUsage = errors.New("usage")

func main() {
	configureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		}
		os.Exit(1)
	}
}

// configureRuntime tunes the GC for large per-pixel allocations.
func configureRuntime() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	debug.SetGCPercent(200)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	switch args[0] {
	case "extract":
		opts, err := parseExtract(args[1:], stderr)
		if err != nil {
			return err
		}
		return runExtract(ctx, opts, stderr)
	case "segment":
		opts, err := parseSegment(args[1:], stderr)
		if err != nil {
			return err
		}
		return runSegment(ctx, opts, stdout, stderr)
	case "runs":
		return runRuns(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "%s %s (%s)\n", AppName, AppVersion, runtime.Version())
		return nil
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return errUsage
	}
}

// settingFlags are the config overrides shared by both commands.
type settingFlags struct {
	configPath     string
	bins           int
	colorSpace     string
	smoothing      float64
	kernel         string
	margin         float64
	regularization string
	rule           string
	threshold      float64
	workers        int
	logLevel       string
	logFormat      string
	record         string
}

func (s *settingFlags) register(fs *flag.FlagSet) {
	def := config.Default()
	fs.StringVar(&s.configPath, "config", "", "YAML configuration file")
	fs.IntVar(&s.bins, "bins", def.Bins, "histogram bins per channel")
	fs.StringVar(&s.colorSpace, "color-space", def.ColorSpace, "bgr, hsv, lab, ycrcb or gray")
	fs.Float64Var(&s.smoothing, "smoothing", def.Preprocess.Smoothing, "Gaussian blur sigma before binning, 0 to disable")
	fs.StringVar(&s.kernel, "kernel", def.Foreground.Kernel, "foreground weighting: none or epanechnikov")
	fs.Float64Var(&s.margin, "margin", def.Background.Margin, "background annulus expansion factor")
	fs.StringVar(&s.regularization, "regularization", def.Regularization, "none, gaussian or explicit")
	fs.StringVar(&s.rule, "rule", def.Decision.Rule, "decision rule: ratio or otsu")
	fs.Float64Var(&s.threshold, "threshold", def.Decision.Threshold, "object/background ratio threshold")
	fs.IntVar(&s.workers, "workers", def.Performance.MaxWorkers, "worker goroutines, 0 for one per CPU")
	fs.StringVar(&s.logLevel, "log-level", def.Log.Level, "debug, info, warn or error")
	fs.StringVar(&s.logFormat, "log-format", def.Log.Format, "console or json")
	fs.StringVar(&s.record, "record", "", "SQLite run ledger to append this run to")
}

// resolve loads the config file and applies only the flags set on the
// command line on top of it.
func (s *settingFlags) resolve(fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bins":
			cfg.Bins = s.bins
		case "color-space":
			cfg.ColorSpace = strings.ToLower(s.colorSpace)
		case "smoothing":
			cfg.Preprocess.Smoothing = s.smoothing
		case "kernel":
			cfg.Foreground.Kernel = strings.ToLower(s.kernel)
		case "margin":
			cfg.Background.Margin = s.margin
		case "regularization":
			cfg.Regularization = strings.ToLower(s.regularization)
		case "rule":
			cfg.Decision.Rule = strings.ToLower(s.rule)
		case "threshold":
			cfg.Decision.Threshold = s.threshold
		case "workers":
			cfg.Performance.MaxWorkers = s.workers
		case "log-level":
			cfg.Log.Level = strings.ToLower(s.logLevel)
		case "log-format":
			cfg.Log.Format = strings.ToLower(s.logFormat)
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type extractOptions struct {
	cfg     *config.Config
	record  string
	request pipeline.ExtractRequest
}

func parseExtract(args []string, stderr io.Writer) (*extractOptions, error) {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		settings settingFlags
		image    string
		region   string
		out      string
		plotPath string
	)
	settings.register(fs)
	fs.StringVar(&image, "image", "", "input image")
	fs.StringVar(&region, "region", "", "object rectangle x1,y1,x2,y2 (inclusive)")
	fs.StringVar(&out, "out", "", "output histogram YAML")
	fs.StringVar(&plotPath, "plot", "", "output chart of the channel marginals (png, svg or pdf)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if image == "" || region == "" || out == "" {
		fs.Usage()
		return nil, fmt.Errorf("extract requires -image, -region and -out: %w", errUsage)
	}

	r, err := models.ParseRegion(region)
	if err != nil {
		return nil, err
	}
	cfg, err := settings.resolve(fs)
	if err != nil {
		return nil, err
	}

	return &extractOptions{
		cfg:     cfg,
		record:  settings.record,
		request: pipeline.ExtractRequest{ImagePath: image, Region: r, Output: out, PlotPath: plotPath},
	}, nil
}

type segmentOptions struct {
	cfg     *config.Config
	record  string
	request pipeline.SegmentRequest
}

func parseSegment(args []string, stderr io.Writer) (*segmentOptions, error) {
	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		settings settingFlags
		region   string
		req      pipeline.SegmentRequest
	)
	settings.register(fs)
	fs.StringVar(&req.ImagePath, "image", "", "input image")
	fs.StringVar(&region, "region", "", "object rectangle x1,y1,x2,y2 (inclusive)")
	fs.StringVar(&req.ForegroundPath, "fg", "", "precomputed object histogram YAML")
	fs.StringVar(&req.BackgroundPath, "bg", "", "precomputed background histogram YAML")
	fs.StringVar(&req.PriorObjectPath, "prior-object", "", "object prior image for -regularization explicit")
	fs.StringVar(&req.PriorBackgroundPath, "prior-background", "", "background prior image for -regularization explicit")
	fs.StringVar(&req.TruthPath, "truth", "", "ground truth mask to evaluate against")
	fs.StringVar(&req.MaskPath, "mask", "", "output mask image")
	fs.StringVar(&req.ProbabilityPath, "prob", "", "output object probability image")
	fs.StringVar(&req.ObjectPosteriorPath, "post-object", "", "output raw object posterior (.tif or .exr, float32)")
	fs.StringVar(&req.BackgroundPosteriorPath, "post-background", "", "output raw background posterior (.tif or .exr, float32)")
	fs.StringVar(&req.ForegroundOutPath, "fg-out", "", "write the object histogram used")
	fs.StringVar(&req.BackgroundOutPath, "bg-out", "", "write the background histogram used")
	fs.StringVar(&req.PlotPath, "plot", "", "output chart of the object and background marginals")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if req.ImagePath == "" || region == "" || req.MaskPath == "" {
		fs.Usage()
		return nil, fmt.Errorf("segment requires -image, -region and -mask: %w", errUsage)
	}

	r, err := models.ParseRegion(region)
	if err != nil {
		return nil, err
	}
	req.Region = r

	cfg, err := settings.resolve(fs)
	if err != nil {
		return nil, err
	}

	return &segmentOptions{cfg: cfg, record: settings.record, request: req}, nil
}

func newCoordinator(cfg *config.Config, stderr io.Writer) (*pipeline.Coordinator, logger.Logger, error) {
	log, err := logger.New(cfg.Log.Format, cfg.Log.Level, stderr)
	if err != nil {
		return nil, nil, err
	}

	log.Debug("Main", "configuration resolved", map[string]interface{}{
		"version":     AppVersion,
		"go_version":  runtime.Version(),
		"bins":        cfg.Bins,
		"color_space": cfg.ColorSpace,
		"workers":     cfg.Workers(),
	})

	loader := stages.NewLoader(log)
	loader.Smoothing = cfg.Preprocess.Smoothing

	c, err := pipeline.NewCoordinator(cfg, loader, stages.NewSaver(log), log)
	if err != nil {
		return nil, nil, err
	}
	return c, log, nil
}

func runExtract(ctx context.Context, opts *extractOptions, stderr io.Writer) error {
	c, log, err := newCoordinator(opts.cfg, stderr)
	if err != nil {
		return err
	}
	defer c.LogTimings()

	start := time.Now()
	res, err := c.Extract(ctx, opts.request)
	if err != nil {
		log.Error("Main", err, map[string]interface{}{"command": "extract"})
		return err
	}

	return record(opts.record, &store.Run{
		ID:         res.RunID,
		Command:    "extract",
		ImagePath:  opts.request.ImagePath,
		Region:     res.Region.String(),
		ColorSpace: opts.cfg.ColorSpace,
		Bins:       opts.cfg.Bins,
		Duration:   time.Since(start),
	}, log)
}

func runSegment(ctx context.Context, opts *segmentOptions, stdout, stderr io.Writer) error {
	c, log, err := newCoordinator(opts.cfg, stderr)
	if err != nil {
		return err
	}
	defer c.LogTimings()

	start := time.Now()
	res, err := c.Segment(ctx, opts.request)
	if err != nil {
		log.Error("Main", err, map[string]interface{}{"command": "segment"})
		return err
	}
	elapsed := time.Since(start)

	printSummary(stdout, res)
	return record(opts.record, segmentRun(opts, res, elapsed), log)
}

func segmentRun(opts *segmentOptions, res *pipeline.SegmentResult, elapsed time.Duration) *store.Run {
	run := &store.Run{
		ID:             res.RunID,
		Command:        "segment",
		ImagePath:      opts.request.ImagePath,
		Region:         res.Region.String(),
		ColorSpace:     opts.cfg.ColorSpace,
		Bins:           opts.cfg.Bins,
		Regularization: opts.cfg.Regularization,
		Rule:           res.Rule,
		ObjectPixels:   res.ObjectPixels,
		TotalPixels:    res.Mask.Width * res.Mask.Height,
		InsideMean:     res.Contrast.InsideMean,
		OutsideMean:    res.Contrast.OutsideMean,
		Duration:       elapsed,
	}
	if m := res.Metrics; m != nil {
		run.IoU = &m.IoU
		run.Dice = &m.DiceCoefficient
		run.Precision = &m.Precision
		run.Recall = &m.Recall
		run.Hausdorff = &m.HausdorffDistance
	}
	return run
}

// record appends run to the ledger at path; an empty path skips it.
func record(path string, run *store.Run, log logger.Logger) error {
	if path == "" {
		return nil
	}

	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Record(run); err != nil {
		return err
	}

	log.Info("Main", "run recorded", map[string]interface{}{
		"run_id": run.ID,
		"ledger": path,
	})
	return nil
}

func runRuns(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		db    string
		id    string
		limit int
	)
	fs.StringVar(&db, "db", "", "SQLite run ledger")
	fs.StringVar(&id, "id", "", "show every field of one run")
	fs.IntVar(&limit, "limit", 20, "number of runs to show, 0 for all")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if db == "" {
		fs.Usage()
		return fmt.Errorf("runs requires -db: %w", errUsage)
	}

	s, err := store.Open(db)
	if err != nil {
		return err
	}
	defer s.Close()

	if id != "" {
		r, err := s.Get(id)
		if err != nil {
			return err
		}
		printRun(stdout, r)
		return nil
	}

	runs, err := s.List(limit)
	if err != nil {
		return err
	}

	printRuns(stdout, runs)
	return nil
}

func printRun(w io.Writer, r *store.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }

	row("run", r.ID)
	row("created", r.CreatedAt.Format(time.RFC3339))
	row("command", r.Command)
	row("image", r.ImagePath)
	row("region", r.Region)
	row("color space", r.ColorSpace)
	row("bins", fmt.Sprint(r.Bins))
	if r.Command == "segment" {
		row("regularization", r.Regularization)
		row("rule", r.Rule)
		row("object pixels", fmt.Sprintf("%d of %d", r.ObjectPixels, r.TotalPixels))
		row("probability inside", fmt.Sprintf("%.4f", r.InsideMean))
		row("probability outside", fmt.Sprintf("%.4f", r.OutsideMean))
	}
	for _, m := range []struct {
		name string
		v    *float64
	}{
		{"iou", r.IoU}, {"dice", r.Dice}, {"precision", r.Precision}, {"recall", r.Recall}, {"hausdorff", r.Hausdorff},
	} {
		if m.v != nil {
			row(m.name, fmt.Sprintf("%.4f", *m.v))
		}
	}
	row("duration", r.Duration.String())
	tw.Flush()
}

func printRuns(w io.Writer, runs []*store.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tCOMMAND\tIMAGE\tREGION\tSPACE\tBINS\tOBJECT\tIOU\tMS")
	for _, r := range runs {
		iou := "-"
		if r.IoU != nil {
			iou = fmt.Sprintf("%.4f", *r.IoU)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d/%d\t%s\t%.1f\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Command, r.ImagePath, r.Region,
			r.ColorSpace, r.Bins, r.ObjectPixels, r.TotalPixels, iou,
			float64(r.Duration)/float64(time.Millisecond))
	}
	tw.Flush()
}

func printSummary(w io.Writer, res *pipeline.SegmentResult) {
	total := res.Mask.Width * res.Mask.Height
	fmt.Fprintf(w, "region %s, rule %s: %d of %d pixels labelled object\n",
		res.Region, res.Rule, res.ObjectPixels, total)
	fmt.Fprintf(w, "object probability: %.3f inside the region, %.3f outside\n",
		res.Contrast.InsideMean, res.Contrast.OutsideMean)

	if res.Metrics == nil {
		return
	}

	desc := res.Metrics.GetMetricsDescription()
	keys := make([]string, 0, len(desc))
	for k := range desc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\n", desc[k])
	}
}
