package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"nanorods/internal/logger"
	"nanorods/pkg/analysis"
	"nanorods/pkg/config"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Folder of micrographs, or EPU session folder with -grid")
	configPath := flag.String("config", "nanorods.yaml", "YAML configuration file (defaults are used when missing)")
	outputDir := flag.String("output", "", "Folder receiving the analysis results (default: next to the input folder)")
	gridMode := flag.Bool("grid", false, "Treat the input as an EPU session (Images-Disc1/<GridSquare>/Data)")
	numWorkers := flag.Int("workers", 0, "Number of micrographs analyzed in parallel (default: all cores)")
	timeout := flag.Duration("timeout", 0, "Time limit for a single micrograph (default: 10m)")
	pixelSize := flag.Float64("pixel-size", 0, "Pixel size in nm for images without calibration")
	noOverlay := flag.Bool("no-overlay", false, "Do not write overlay images")
	logLevel := flag.String("log-level", "", "Log level: trace, debug, info, warn, error")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line flags take precedence over the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.Dir = *outputDir
		case "grid":
			cfg.Processing.GridMode = *gridMode
		case "workers":
			cfg.Processing.NumWorkers = *numWorkers
		case "timeout":
			cfg.Processing.ImageTimeout = *timeout
		case "pixel-size":
			cfg.Processing.PixelSize = *pixelSize
		case "no-overlay":
			cfg.Output.SaveOverlays = !*noOverlay
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	level := logger.ParseLevel(cfg.Logging.Level)
	var logr zerolog.Logger
	if cfg.Logging.JSON {
		logr = logger.New(os.Stderr, level)
	} else {
		logr = logger.NewConsole(level)
	}

	params, err := cfg.AnalyzerParams(*inputDir)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	analyzer, err := analysis.NewAnalyzer(params, logr)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("NANOROD EXTRACTION AND MEASUREMENT FROM ELECTRON MICROGRAPHS")
	fmt.Println("================================")
	fmt.Printf("Input: %s\n", *inputDir)
	fmt.Printf("Workers: %d, per-image timeout: %v\n", params.NumWorkers, params.ImageTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	summary, err := analyzer.Process(ctx)
	if err != nil && summary == nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nAnalysis finished in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("Results saved to: %s\n\n", summary.OutputDir)

	fmt.Printf("Summary:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Folders: %d\n", summary.Folders)
	fmt.Printf("Images processed: %d\n", summary.ImagesProcessed)
	fmt.Printf("Images with nanorods: %d\n", summary.ImagesWithParticles)
	fmt.Printf("Nanorods measured: %d\n", summary.Particles)
	if summary.Particles > 0 {
		fmt.Printf("Length: %.2f ± %.2f nm\n", summary.LengthMeanNm, summary.LengthStdNm)
	}

	if len(summary.Failures) > 0 {
		fmt.Printf("\nFailed images (%d):\n", len(summary.Failures))
		for _, f := range summary.Failures {
			fmt.Printf("- %v\n", f)
		}
	}

	if err != nil {
		log.Fatalf("Analysis interrupted: %v", err)
	}
}
