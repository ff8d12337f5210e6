// Package pipeline runs extraction and segmentation end to end: it loads
// inputs through an ImageSource, drives the histogram and segment packages
// with settings from config, and writes results through a ResultSink.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"histoseg/internal/config"
	"histoseg/internal/debug/timing"
	"histoseg/internal/logger"
	"histoseg/internal/models"
	"histoseg/internal/processing/histogram"
	"histoseg/internal/processing/segment"
	"histoseg/internal/report"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const component = "Pipeline"

type Coordinator struct {
	cfg    *config.Config
	space  models.ColorSpace
	source ImageSource
	sink   ResultSink
	logger logger.Logger
	timing *timing.Tracker
}

func NewCoordinator(cfg *config.Config, source ImageSource, sink ResultSink, log logger.Logger) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	space, err := models.ParseColorSpace(cfg.ColorSpace)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NoOp{}
	}

	return &Coordinator{
		cfg:    cfg,
		space:  space,
		source: source,
		sink:   sink,
		logger: log,
		timing: timing.NewTracker(stageLogger{log}),
	}, nil
}

// Timings exposes the stage durations recorded so far.
func (c *Coordinator) Timings() *timing.Tracker {
	return c.timing
}

type ExtractRequest struct {
	ImagePath string
	Region    models.Region
	// Output, when set, receives the histogram as YAML.
	Output string
	// PlotPath, when set, receives a chart of the channel marginals.
	PlotPath string
}

type ExtractResult struct {
	RunID     string
	Histogram *histogram.Histogram
	// Region is the requested region intersected with the image.
	Region models.Region
}

// Extract builds the foreground histogram of a region.
func (c *Coordinator) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	runID := uuid.New().String()
	c.logger.Debug(component, "extraction started", map[string]interface{}{
		"run_id": runID,
		"image":  req.ImagePath,
	})

	img, err := c.loadImage(req.ImagePath)
	if err != nil {
		return nil, err
	}

	region := c.clampRegion(img, req.Region)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := c.timing.Start("foreground_histogram")
	fg, err := c.foreground(img, region)
	stop()
	if err != nil {
		return nil, err
	}

	if req.Output != "" {
		if err := c.save("save_histogram", func() error { return c.sink.SaveHistogram(req.Output, fg) }); err != nil {
			return nil, err
		}
	}
	if req.PlotPath != "" {
		if err := c.plot(req.PlotPath, report.Series{Name: "object", Histogram: fg}); err != nil {
			return nil, err
		}
	}

	c.logger.Info(component, "foreground histogram extracted", map[string]interface{}{
		"run_id": runID,
		"region": region.String(),
		"dims":   fg.Dims(),
		"bins":   fg.BinsPerDim(),
		"output": req.Output,
	})

	return &ExtractResult{RunID: runID, Histogram: fg, Region: region}, nil
}

type SegmentRequest struct {
	ImagePath string
	Region    models.Region

	// Precomputed histograms; the missing ones are built from Region.
	ForegroundPath string
	BackgroundPath string

	// Prior images used when regularization is "explicit". A missing one
	// falls back to the Gaussian prior around Region.
	PriorObjectPath     string
	PriorBackgroundPath string

	TruthPath string

	MaskPath        string
	ProbabilityPath string
	// Raw Object and Background posterior maps, written as float32.
	ObjectPosteriorPath     string
	BackgroundPosteriorPath string
	ForegroundOutPath       string
	BackgroundOutPath       string
	PlotPath                string
}

type SegmentResult struct {
	RunID      string
	Region     models.Region
	Foreground *histogram.Histogram
	Background *histogram.Histogram
	Posteriors *segment.Posteriors
	Mask       *models.Mask
	Rule       string
	// Cut is the Otsu probability cut when the otsu rule ran.
	Cut          float64
	ObjectPixels int
	Contrast     Contrast
	// Metrics is nil unless a ground truth was given.
	Metrics *SegmentationMetrics
}

// Segment labels every pixel of the image as object or background.
func (c *Coordinator) Segment(ctx context.Context, req SegmentRequest) (*SegmentResult, error) {
	runID := uuid.New().String()
	c.logger.Debug(component, "segmentation started", map[string]interface{}{
		"run_id": runID,
		"image":  req.ImagePath,
	})

	img, err := c.loadImage(req.ImagePath)
	if err != nil {
		return nil, err
	}

	region := c.clampRegion(img, req.Region)

	fg, bg, err := c.histograms(ctx, img, region, req)
	if err != nil {
		return nil, err
	}

	reg, err := c.regularization(region, req)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := c.timing.Start("posteriors")
	post, err := segment.ComputePosteriors(img, fg, bg, reg)
	stop()
	if err != nil {
		return nil, fmt.Errorf("compute posteriors: %w", err)
	}

	result := &SegmentResult{
		RunID:      runID,
		Region:     region,
		Foreground: fg,
		Background: bg,
		Posteriors: post,
	}

	stop = c.timing.Start("decision")
	switch c.cfg.Decision.Rule {
	case "otsu":
		result.Mask, result.Cut = post.OtsuMask()
		result.Rule = segment.OtsuRule{}.Name()
	default:
		rule := segment.RatioRule{Threshold: c.cfg.Decision.Threshold}
		result.Mask = rule.Apply(post)
		result.Rule = rule.Name()
	}
	stop()
	result.ObjectPixels = result.Mask.Count()
	result.Contrast = ProbabilityContrast(post.Probability(), region)
	c.logger.Debug(component, "probability contrast", result.Contrast.Fields())

	if req.TruthPath != "" {
		truth, err := c.source.LoadMask(req.TruthPath)
		if err != nil {
			return nil, fmt.Errorf("load ground truth: %w", err)
		}
		result.Metrics, err = CalculateSegmentationMetrics(truth, result.Mask)
		if err != nil {
			return nil, fmt.Errorf("evaluate mask: %w", err)
		}
		c.logger.Info(component, "mask evaluated", result.Metrics.Fields())
	}

	if err := c.writeOutputs(req, result); err != nil {
		return nil, err
	}

	c.logger.Info(component, "segmentation complete", map[string]interface{}{
		"run_id":         runID,
		"region":         region.String(),
		"regularization": reg.Mode.String(),
		"rule":           result.Rule,
		"object_pixels":  result.ObjectPixels,
		"total_pixels":   img.Width * img.Height,
	})

	return result, nil
}

func (c *Coordinator) loadImage(path string) (*models.Image, error) {
	stop := c.timing.Start("load_image")
	defer stop()

	img, err := c.source.LoadImage(path, c.space)
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", path, err)
	}

	c.logger.Debug(component, "image loaded", map[string]interface{}{
		"path":        path,
		"width":       img.Width,
		"height":      img.Height,
		"color_space": c.space.String(),
	})
	return img, nil
}

// clampRegion moves each coordinate of region into the image on its own, so
// a region past an edge collapses onto that edge instead of vanishing.
func (c *Coordinator) clampRegion(img *models.Image, region models.Region) models.Region {
	clamped := region.Clamp(img.Width, img.Height)
	if clamped != region {
		c.logger.Warning(component, "region clamped to image bounds", map[string]interface{}{
			"requested": region.String(),
			"clamped":   clamped.String(),
		})
	}
	if clamped.Empty() {
		c.logger.Warning(component, "region is empty", map[string]interface{}{
			"requested": region.String(),
		})
	}
	return clamped
}

func (c *Coordinator) newHistogram(img *models.Image) (*histogram.Histogram, error) {
	return histogram.New(img.Channels(), c.cfg.Bins, histogram.WithWorkers(c.cfg.Workers()))
}

func (c *Coordinator) foreground(img *models.Image, region models.Region) (*histogram.Histogram, error) {
	h, err := c.newHistogram(img)
	if err != nil {
		return nil, err
	}

	var weights *models.Grid
	if c.cfg.Foreground.Kernel == "epanechnikov" {
		weights = histogram.EpanechnikovWeights(img.Width, img.Height, region)
	}

	if err := h.ExtractForeground(img, weights, region); err != nil {
		return nil, fmt.Errorf("extract foreground: %w", err)
	}
	return h, nil
}

func (c *Coordinator) background(img *models.Image, region models.Region) (*histogram.Histogram, error) {
	h, err := c.newHistogram(img)
	if err != nil {
		return nil, err
	}

	outer := region.Expand(c.cfg.Background.Margin).Intersect(img.Bounds())
	if err := h.ExtractBackground(img, region, outer); err != nil {
		return nil, fmt.Errorf("extract background: %w", err)
	}
	return h, nil
}

// histograms loads or builds the object and background histograms
// concurrently.
func (c *Coordinator) histograms(ctx context.Context, img *models.Image, region models.Region, req SegmentRequest) (*histogram.Histogram, *histogram.Histogram, error) {
	var fg, bg *histogram.Histogram
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		fg, err = c.loadOrBuild(ctx, "foreground", req.ForegroundPath, func() (*histogram.Histogram, error) {
			return c.foreground(img, region)
		})
		return err
	})

	g.Go(func() error {
		var err error
		bg, err = c.loadOrBuild(ctx, "background", req.BackgroundPath, func() (*histogram.Histogram, error) {
			return c.background(img, region)
		})
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return fg, bg, nil
}

func (c *Coordinator) loadOrBuild(ctx context.Context, name, path string, build func() (*histogram.Histogram, error)) (*histogram.Histogram, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if path != "" {
		stop := c.timing.Start("load_" + name + "_histogram")
		defer stop()

		h, err := c.source.LoadHistogram(path, histogram.WithWorkers(c.cfg.Workers()))
		if err != nil {
			return nil, fmt.Errorf("load %s histogram %s: %w", name, path, err)
		}
		return h, nil
	}

	stop := c.timing.Start(name + "_histogram")
	defer stop()
	return build()
}

func (c *Coordinator) regularization(region models.Region, req SegmentRequest) (segment.Regularization, error) {
	switch c.cfg.Regularization {
	case "none":
		return segment.None(), nil
	case "explicit":
		po, err := c.loadPrior(req.PriorObjectPath)
		if err != nil {
			return segment.Regularization{}, err
		}
		pb, err := c.loadPrior(req.PriorBackgroundPath)
		if err != nil {
			return segment.Regularization{}, err
		}
		return segment.Explicit(po, pb).WithRegion(region), nil
	default:
		return segment.DefaultGaussian(region), nil
	}
}

func (c *Coordinator) loadPrior(path string) (*models.Grid, error) {
	if path == "" {
		return nil, nil
	}

	stop := c.timing.Start("load_prior")
	defer stop()

	g, err := c.source.LoadGrid(path)
	if err != nil {
		return nil, fmt.Errorf("load prior %s: %w", path, err)
	}
	return g, nil
}

func (c *Coordinator) writeOutputs(req SegmentRequest, result *SegmentResult) error {
	fg, bg := result.Foreground, result.Background

	if req.MaskPath != "" {
		if err := c.save("save_mask", func() error { return c.sink.SaveMask(req.MaskPath, result.Mask) }); err != nil {
			return err
		}
	}
	if req.ProbabilityPath != "" {
		prob := result.Posteriors.Probability()
		if err := c.save("save_probability", func() error { return c.sink.SaveProbability(req.ProbabilityPath, prob) }); err != nil {
			return err
		}
	}
	if req.ObjectPosteriorPath != "" {
		if err := c.save("save_posterior", func() error { return c.sink.SavePosterior(req.ObjectPosteriorPath, result.Posteriors.Object) }); err != nil {
			return err
		}
	}
	if req.BackgroundPosteriorPath != "" {
		if err := c.save("save_posterior", func() error { return c.sink.SavePosterior(req.BackgroundPosteriorPath, result.Posteriors.Background) }); err != nil {
			return err
		}
	}
	if req.ForegroundOutPath != "" {
		if err := c.save("save_histogram", func() error { return c.sink.SaveHistogram(req.ForegroundOutPath, fg) }); err != nil {
			return err
		}
	}
	if req.BackgroundOutPath != "" {
		if err := c.save("save_histogram", func() error { return c.sink.SaveHistogram(req.BackgroundOutPath, bg) }); err != nil {
			return err
		}
	}
	if req.PlotPath != "" {
		return c.plot(req.PlotPath,
			report.Series{Name: "object", Histogram: fg},
			report.Series{Name: "background", Histogram: bg},
		)
	}
	return nil
}

func (c *Coordinator) plot(path string, series ...report.Series) error {
	title := fmt.Sprintf("%s marginals, %d bins", c.space, c.cfg.Bins)
	return c.save("save_plot", func() error {
		return c.sink.SavePlot(path, title, c.space.ChannelNames(), series...)
	})
}

func (c *Coordinator) save(stage string, write func() error) error {
	stop := c.timing.Start(stage)
	defer stop()

	if err := write(); err != nil {
		c.logger.Error(component, err, map[string]interface{}{"stage": stage})
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}

// LogTimings reports every stage recorded since the previous report at info
// level, then clears them.
func (c *Coordinator) LogTimings() {
	for _, st := range c.timing.Summary() {
		c.logger.Info("Timing", st.Stage, map[string]interface{}{
			"count":    st.Count,
			"total_ms": float64(st.Total) / float64(time.Millisecond),
		})
	}
	if slow := c.timing.Slowest(1); len(slow) == 1 {
		c.logger.Debug("Timing", "slowest stage", map[string]interface{}{
			"stage":  slow[0].Stage,
			"avg_ms": float64(c.timing.Average(slow[0].Stage)) / float64(time.Millisecond),
		})
	}
	c.timing.Reset("")
}

// stageLogger forwards completed stages to the logger at debug level.
type stageLogger struct {
	log logger.Logger
}

func (s stageLogger) StageCompleted(stage string, d time.Duration) {
	s.log.Debug("Timing", "stage completed", map[string]interface{}{
		"stage":    stage,
		"duration": d.String(),
	})
}
