package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/fieldlens-tech/fieldlens/internal/ensemble"
	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/geometric"
	"github.com/fieldlens-tech/fieldlens/internal/pdf"
	"github.com/fieldlens-tech/fieldlens/internal/render"
	"github.com/fieldlens-tech/fieldlens/internal/structure"
	"github.com/fieldlens-tech/fieldlens/internal/textfilter"
	"github.com/fieldlens-tech/fieldlens/internal/vision"
)

// Config holds configuration for the detection pipeline and its components.
type Config struct {
	RenderDPI        float64
	Workers          int
	Geometric        geometric.Config
	Merger           ensemble.Config
	Vision           vision.Config
	TextFilter       textfilter.Config
	EnableTextFilter bool
}

// DefaultConfig returns a default pipeline config with component defaults.
// Vision stays inactive until an API key is configured.
func DefaultConfig() Config {
	return Config{
		RenderDPI:  render.DefaultDPI,
		Geometric:  geometric.DefaultConfig(),
		Merger:     ensemble.DefaultConfig(),
		Vision:     vision.DefaultConfig(),
		TextFilter: textfilter.DefaultConfig(),
	}
}

// StructureDetector finds fields in the document's internal structure.
type StructureDetector interface {
	Detect(doc *pdf.Document) ([]field.Detection, error)
}

// PageDetector finds fields on a rendered page raster.
type PageDetector interface {
	DetectPage(img image.Image, pageIndex int) []field.Detection
}

// VisionDetector finds fields by asking an external vision model.
type VisionDetector interface {
	Configured() bool
	DetectFields(ctx context.Context, pdfPath, documentID string) ([]field.Detection, error)
}

// Merger combines the per-source detection lists into one.
type Merger interface {
	Merge(structure, geometric, vision []field.Detection) []field.Detection
}

// TextFilter suppresses detections that cover printed text.
type TextFilter interface {
	FilterFields(dets []field.Detection, pdfPath string) []field.Detection
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg       Config
	structure StructureDetector
	geometric PageDetector
	vision    VisionDetector
	merger    Merger
	filter    TextFilter
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithRenderDPI sets the raster resolution for the geometric pass.
func (b *Builder) WithRenderDPI(dpi float64) *Builder {
	if dpi > 0 {
		b.cfg.RenderDPI = dpi
	}
	return b
}

// WithWorkers sets the number of pages scanned concurrently in the
// geometric pass. Zero or negative means one worker per CPU.
func (b *Builder) WithWorkers(n int) *Builder {
	b.cfg.Workers = n
	return b
}

// WithGeometric overrides the geometric detector configuration.
func (b *Builder) WithGeometric(cfg geometric.Config) *Builder {
	b.cfg.Geometric = cfg
	return b
}

// WithIoUThreshold sets the overlap threshold used when merging sources.
func (b *Builder) WithIoUThreshold(iou float64) *Builder {
	if iou > 0 {
		b.cfg.Merger.IoUThreshold = iou
	}
	return b
}

// WithPriorities overrides the source ranking used to settle merge
// conflicts.
func (b *Builder) WithPriorities(priorities map[field.DetectionSource]int) *Builder {
	if len(priorities) > 0 {
		b.cfg.Merger.Priorities = priorities
	}
	return b
}

// WithVision configures the vision detector. A config without an API key
// leaves vision disabled.
func (b *Builder) WithVision(cfg vision.Config) *Builder {
	b.cfg.Vision = cfg
	return b
}

// WithTextFilter enables the text overlap filter stage.
func (b *Builder) WithTextFilter(cfg textfilter.Config) *Builder {
	b.cfg.TextFilter = cfg
	b.cfg.EnableTextFilter = true
	return b
}

// WithStructureDetector replaces the structure detector component.
func (b *Builder) WithStructureDetector(d StructureDetector) *Builder {
	b.structure = d
	return b
}

// WithPageDetector replaces the geometric detector component.
func (b *Builder) WithPageDetector(d PageDetector) *Builder {
	b.geometric = d
	return b
}

// WithVisionDetector replaces the vision detector component.
func (b *Builder) WithVisionDetector(d VisionDetector) *Builder {
	b.vision = d
	return b
}

// WithMerger replaces the ensemble merger component.
func (b *Builder) WithMerger(m Merger) *Builder {
	b.merger = m
	return b
}

// WithFilter replaces the text overlap filter component.
func (b *Builder) WithFilter(f TextFilter) *Builder {
	b.filter = f
	b.cfg.EnableTextFilter = true
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Build wires the pipeline components, creating defaults for any that were
// not overridden.
func (b *Builder) Build() *Pipeline {
	p := &Pipeline{
		cfg:       b.cfg,
		structure: b.structure,
		geometric: b.geometric,
		vision:    b.vision,
		merger:    b.merger,
		filter:    b.filter,
		renderer:  render.NewRenderer(render.Config{DPI: b.cfg.RenderDPI}),
	}
	if p.structure == nil {
		p.structure = structure.NewDetector()
	}
	if p.geometric == nil {
		p.geometric = geometric.NewDetector(b.cfg.Geometric)
	}
	if p.vision == nil {
		p.vision = vision.NewDetector(b.cfg.Vision)
	}
	if p.merger == nil {
		p.merger = ensemble.NewMerger(b.cfg.Merger)
	}
	if p.filter == nil && b.cfg.EnableTextFilter {
		p.filter = textfilter.NewFilter(b.cfg.TextFilter)
	}
	return p
}

// Pipeline runs the three detection passes over one document and merges
// their results. A failing detector contributes an empty list; only a
// document that cannot be opened at all aborts the run.
type Pipeline struct {
	cfg       Config
	structure StructureDetector
	geometric PageDetector
	vision    VisionDetector
	merger    Merger
	filter    TextFilter
	renderer  *render.Renderer
}

// New creates a pipeline from cfg with default components.
func New(cfg Config) *Pipeline {
	b := NewBuilder()
	b.cfg = cfg
	if b.cfg.RenderDPI <= 0 {
		b.cfg.RenderDPI = render.DefaultDPI
	}
	return b.Build()
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// VisionConfigured reports whether the vision pass will run.
func (p *Pipeline) VisionConfigured() bool {
	return p.vision != nil && p.vision.Configured()
}

// Timings records how long each pass of a run took.
type Timings struct {
	Structure time.Duration `json:"structure_ns"`
	Geometric time.Duration `json:"geometric_ns"`
	Vision    time.Duration `json:"vision_ns"`
	Merge     time.Duration `json:"merge_ns"`
	Total     time.Duration `json:"total_ns"`
}

// Result is the merged field list of one run plus the summary counts the
// worker and server report.
type Result struct {
	Fields    []field.Detection
	PageCount int
	BySource  map[field.DetectionSource]int
	ByPage    map[int]int
	Timings   Timings
}

// DetectFields runs all detection passes on the PDF at pdfPath and returns
// the merged, position-sorted field list.
func (p *Pipeline) DetectFields(ctx context.Context, pdfPath, documentID string) ([]field.Detection, error) {
	res, err := p.Detect(ctx, pdfPath, documentID)
	if err != nil {
		return nil, err
	}
	return res.Fields, nil
}

// Detect runs all detection passes on the PDF at pdfPath and returns the
// merged fields together with per-pass timings and summary counts.
func (p *Pipeline) Detect(ctx context.Context, pdfPath, documentID string) (*Result, error) {
	start := time.Now()

	doc, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: opening %s: %w", pdfPath, err)
	}
	defer doc.Close()

	var tm Timings
	stepStart := time.Now()
	structureDets := p.runStructure(doc)
	tm.Structure = time.Since(stepStart)

	stepStart = time.Now()
	geometricDets := p.runGeometric(doc)
	tm.Geometric = time.Since(stepStart)

	stepStart = time.Now()
	visionDets := p.runVision(ctx, pdfPath, documentID)
	tm.Vision = time.Since(stepStart)

	stepStart = time.Now()
	merged := p.merger.Merge(structureDets, geometricDets, visionDets)
	if p.filter != nil {
		merged = p.filter.FilterFields(merged, pdfPath)
	}
	tm.Merge = time.Since(stepStart)
	tm.Total = time.Since(start)

	res := &Result{
		Fields:    merged,
		PageCount: doc.PageCount(),
		BySource:  make(map[field.DetectionSource]int),
		ByPage:    make(map[int]int),
		Timings:   tm,
	}
	for _, det := range merged {
		res.BySource[det.Source]++
		res.ByPage[det.PageIndex]++
	}

	slog.Info("Detection pipeline finished",
		"document", documentID,
		"pages", res.PageCount,
		"structure", len(structureDets),
		"geometric", len(geometricDets),
		"vision", len(visionDets),
		"fields", len(merged),
		"duration", tm.Total)
	return res, nil
}

// runStructure guards the structure pass. The PDF parsers panic on some
// malformed inputs, so a panic costs only this pass.
func (p *Pipeline) runStructure(doc *pdf.Document) (dets []field.Detection) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Structure detector panicked", "path", doc.Path(), "panic", r)
			dets = nil
		}
	}()
	out, err := p.structure.Detect(doc)
	if err != nil {
		slog.Error("Structure detector failed", "path", doc.Path(), "error", err)
		return nil
	}
	return out
}

// runGeometric renders every page and scans the rasters with a worker
// pool. Pages that fail to render come back as placeholders, so page
// indexes stay aligned.
func (p *Pipeline) runGeometric(doc *pdf.Document) []field.Detection {
	pages := p.renderer.RenderDocument(doc)
	if len(pages) == 0 {
		return nil
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(pages) {
		workers = len(pages)
	}

	if workers == 1 {
		var out []field.Detection
		for _, page := range pages {
			out = append(out, p.scanPage(page)...)
		}
		return out
	}

	type pageResult struct {
		index int
		dets  []field.Detection
	}
	jobs := make(chan render.PageRaster, len(pages))
	results := make(chan pageResult, len(pages))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				results <- pageResult{index: page.PageIndex, dets: p.scanPage(page)}
			}
		}()
	}
	for _, page := range pages {
		jobs <- page
	}
	close(jobs)

	go func() { wg.Wait(); close(results) }()

	byPage := make(map[int][]field.Detection, len(pages))
	for r := range results {
		byPage[r.index] = r.dets
	}
	var out []field.Detection
	for _, page := range pages {
		out = append(out, byPage[page.PageIndex]...)
	}
	return out
}

// scanPage guards one raster scan; a panicking page contributes nothing.
func (p *Pipeline) scanPage(page render.PageRaster) (dets []field.Detection) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Geometric detector panicked", "page", page.PageIndex, "panic", r)
			dets = nil
		}
	}()
	return p.geometric.DetectPage(page.Image, page.PageIndex)
}

func (p *Pipeline) runVision(ctx context.Context, pdfPath, documentID string) (dets []field.Detection) {
	if p.vision == nil || !p.vision.Configured() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Vision detector panicked", "document", documentID, "panic", r)
			dets = nil
		}
	}()
	out, err := p.vision.DetectFields(ctx, pdfPath, documentID)
	if err != nil {
		slog.Error("Vision detector failed", "document", documentID, "error", err)
		return nil
	}
	return out
}
