package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nanorods/internal/logger"
	"nanorods/internal/models"
	"nanorods/pkg/loader"
	"nanorods/pkg/measurement"
	"nanorods/pkg/visualization"
)

const (
	// DefaultImageTimeout bounds the pipeline run of a single micrograph
	DefaultImageTimeout = 10 * time.Minute

	// TableName is the file name of the per folder result table
	TableName = "Nanorods.csv"

	// gridImagesDir and gridDataDir locate micrographs inside an EPU session:
	// <session>/Images-Disc1/<GridSquare>/Data/*.mrc
	gridImagesDir = "Images-Disc1"
	gridDataDir   = "Data"
)

// ErrImagePanic marks an image whose analysis panicked
var ErrImagePanic = errors.New("image analysis panicked")

// Params holds the batch configuration
type Params struct {
	// InputDir is a folder of micrographs, or an EPU session folder in grid mode
	InputDir string

	// OutputDir receives the timestamped analysis folder. Defaults to the parent of InputDir.
	OutputDir string

	// GridMode treats InputDir as an EPU session with one result table per grid square
	GridMode bool

	// NumWorkers is the number of micrographs analyzed concurrently
	NumWorkers int

	// ImageTimeout bounds the analysis of one micrograph
	ImageTimeout time.Duration

	// PixelSize (nm) is used for raster images and uncalibrated MRC files
	PixelSize float64

	// SaveOverlays writes an overlay PNG for every micrograph with at least one nanorod
	SaveOverlays bool
	Overlay      visualization.Options

	Options Options
}

// Failure records a micrograph that could not be analyzed
type Failure struct {
	Folder string
	Image  string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", filepath.Join(f.Folder, f.Image), f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Analyzer processes every micrograph of an input folder
type Analyzer struct {
	params   *Params
	log      zerolog.Logger
	renderer *visualization.Renderer

	// now is replaced in tests to get a stable output folder name
	now func() time.Time
}

// folder is one unit of output: a set of micrographs sharing a result table
type folder struct {
	name      string
	imageDir  string
	outputDir string
	images    []string
}

type imageOutcome struct {
	rows []measurement.Row
	err  error
}

// NewAnalyzer validates params and fills in defaults
func NewAnalyzer(params *Params, log zerolog.Logger) (*Analyzer, error) {
	if params.InputDir == "" {
		return nil, fmt.Errorf("%w: input directory is required", models.ErrInvalidParameter)
	}
	if params.NumWorkers <= 0 {
		params.NumWorkers = runtime.NumCPU()
	}
	if params.ImageTimeout <= 0 {
		params.ImageTimeout = DefaultImageTimeout
	}
	if params.PixelSize < 0 || math.IsNaN(params.PixelSize) || math.IsInf(params.PixelSize, 0) {
		return nil, fmt.Errorf("%w: pixel size must be non-negative, got %v", models.ErrInvalidParameter, params.PixelSize)
	}
	if err := params.Options.Validate(); err != nil {
		return nil, err
	}

	a := &Analyzer{
		params: params,
		log:    logger.Component(log, "analyzer"),
		now:    time.Now,
	}
	if params.SaveOverlays {
		r, err := visualization.NewRenderer(params.Overlay)
		if err != nil {
			return nil, err
		}
		a.renderer = r
	}
	return a, nil
}

// Process runs the batch. Per image failures are collected in the summary; only setup
// errors and cancellation of ctx are returned.
func (a *Analyzer) Process(ctx context.Context) (*Summary, error) {
	start := time.Now()

	info, err := os.Stat(a.params.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", models.ErrInvalidParameter, a.params.InputDir)
	}

	root := a.outputRoot()
	a.log.Info().Str("output", root).Msg("results will be saved here")

	// Step 1: Discover folders and micrographs
	folders, err := a.discover(root)
	if err != nil {
		return nil, err
	}

	summary := &Summary{OutputDir: root, Folders: len(folders)}
	var table measurement.Table

	// Step 2: Analyze each folder
	for i, f := range folders {
		a.log.Info().
			Str("folder", f.name).
			Int("index", i+1).
			Int("total", len(folders)).
			Int("images", len(f.images)).
			Msg("processing folder")

		if err := os.MkdirAll(f.outputDir, 0755); err != nil {
			return summary, fmt.Errorf("failed to create output directory: %w", err)
		}

		outcomes := a.processFolder(ctx, f)

		// Step 3: Merge in sorted filename order
		var folderTable measurement.Table
		for j, o := range outcomes {
			if o.err != nil {
				fail := Failure{Folder: f.name, Image: f.images[j], Err: o.err}
				a.log.Error().Err(o.err).Str("folder", f.name).Str("image", f.images[j]).Msg("image failed")
				summary.Failures = append(summary.Failures, fail)
				continue
			}
			summary.ImagesProcessed++
			if len(o.rows) > 0 {
				summary.ImagesWithParticles++
			}
			folderTable.Append(o.rows)
		}
		table.Append(folderTable.Rows())
		a.log.Info().Str("folder", f.name).Int("nanorods", folderTable.Len()).Msg("folder done")

		if err := writeTable(filepath.Join(f.outputDir, TableName), folderTable.Rows()); err != nil {
			return summary, err
		}

		if err := ctx.Err(); err != nil {
			summary.finish(table.Rows(), time.Since(start))
			return summary, err
		}
	}

	summary.finish(table.Rows(), time.Since(start))
	return summary, nil
}

// outputRoot names the analysis folder after the input folder and the current time
func (a *Analyzer) outputRoot() string {
	input := filepath.Clean(a.params.InputDir)
	parent := a.params.OutputDir
	if parent == "" {
		parent = filepath.Dir(input)
	}
	name := "Analysis_" + filepath.Base(input) + "_" + a.now().Format("2006-01-02_1504")
	return filepath.Join(parent, strings.ReplaceAll(name, " ", "_"))
}

func (a *Analyzer) discover(root string) ([]folder, error) {
	if !a.params.GridMode {
		images, err := listImages(a.params.InputDir)
		if err != nil {
			return nil, err
		}
		return []folder{{
			name:      filepath.Base(filepath.Clean(a.params.InputDir)),
			imageDir:  a.params.InputDir,
			outputDir: root,
			images:    images,
		}}, nil
	}

	gridRoot := filepath.Join(a.params.InputDir, gridImagesDir)
	entries, err := os.ReadDir(gridRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid squares: %w", err)
	}

	var folders []folder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dataDir := filepath.Join(gridRoot, e.Name(), gridDataDir)
		images, err := listImages(dataDir)
		if err != nil {
			a.log.Warn().Err(err).Str("folder", e.Name()).Msg("skipping grid square")
			continue
		}
		folders = append(folders, folder{
			name:      e.Name(),
			imageDir:  dataDir,
			outputDir: filepath.Join(root, e.Name()),
			images:    images,
		})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].name < folders[j].name })
	return folders, nil
}

// listImages returns the supported micrograph file names of dir in sorted order
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}
	var images []string
	for _, e := range entries {
		if e.Type().IsRegular() && loader.IsSupported(e.Name()) {
			images = append(images, e.Name())
		}
	}
	sort.Strings(images)
	return images, nil
}

// processFolder analyzes the images of f on the worker pool. Outcomes are indexed like f.images.
func (a *Analyzer) processFolder(ctx context.Context, f folder) []imageOutcome {
	outcomes := make([]imageOutcome, len(f.images))
	sem := make(chan struct{}, a.params.NumWorkers)
	var wg sync.WaitGroup

	for i, name := range f.images {
		select {
		case <-ctx.Done():
			outcomes[i].err = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if p := recover(); p != nil {
					outcomes[idx] = imageOutcome{err: fmt.Errorf("%w: %v", ErrImagePanic, p)}
				}
			}()

			rows, err := a.processImage(ctx, f, name)
			outcomes[idx] = imageOutcome{rows: rows, err: err}
		}(i, name)
	}

	wg.Wait()
	return outcomes
}

func (a *Analyzer) processImage(ctx context.Context, f folder, name string) ([]measurement.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, a.params.ImageTimeout)
	defer cancel()

	log := a.log.With().Str("folder", f.name).Logger()
	log.Debug().Str("image", name).Msg("processing file")

	img, err := loader.Load(filepath.Join(f.imageDir, name), a.params.PixelSize)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	result, err := AnalyzeImage(ctx, img, a.params.Options, log)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("analysis timed out after %v: %w", a.params.ImageTimeout, err)
		}
		return nil, err
	}

	if a.renderer != nil && len(result.Rows) > 0 {
		overlay, err := a.renderer.Render(img, result.Labels, result.Regions)
		if err != nil {
			return nil, fmt.Errorf("overlay: %w", err)
		}
		// The full file name keeps x.mrc and x.tif overlays apart
		path := filepath.Join(f.outputDir, name+".png")
		if err := visualization.Save(path, overlay); err != nil {
			return nil, err
		}
	}
	return result.Rows, nil
}

func writeTable(path string, rows []measurement.Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if err := measurement.WriteCSV(file, rows); err != nil {
		file.Close()
		return fmt.Errorf("failed to write table %s: %w", path, err)
	}
	return file.Close()
}
