package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"wedgecal/internal/models"
	"wedgecal/pkg/calfile"
	"wedgecal/pkg/calibration"
	"wedgecal/pkg/config"
	"wedgecal/pkg/histogram"
	"wedgecal/pkg/imageio"
	"wedgecal/pkg/visualization"
)

func main() {
	// Parse command line arguments
	imagePath := flag.String("image", "", "Scanned image containing the step wedge")
	roiFlag := flag.String("roi", "", "Wedge region as x1,y1,x2,y2 (default: whole image)")
	configPath := flag.String("config", "wedgecal.yaml", "Configuration file")
	sideFlag := flag.String("side", "left", "Image side the calibration belongs to (left or right)")
	odFlag := flag.String("od", "", "Comma-separated wedge OD values, overriding the configuration")
	calDir := flag.String("calibration-dir", "", "Directory for calibration files (default: from configuration)")
	loadPath := flag.String("load", "", "Apply an existing calibration file instead of calibrating")
	printMap := flag.Bool("print-map", false, "Print the gray-to-OD map")
	saveImage := flag.Bool("save-image", false, "Save the calibrated image next to the calibration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if *imagePath == "" && *loadPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *odFlag != "" {
		ods, err := parseODValues(*odFlag)
		if err != nil {
			log.Fatalf("Invalid -od: %v", err)
		}
		cfg.Wedge.ODValues = ods
	}
	if *calDir != "" {
		cfg.Output.CalibrationDir = *calDir
	}
	if *saveImage {
		cfg.Output.SaveCalibratedImage = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	side, err := models.ParseSide(*sideFlag)
	if err != nil {
		log.Fatalf("Invalid -side: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("STEP WEDGE OPTICAL DENSITY CALIBRATION")
	fmt.Println("================================")

	if *loadPath != "" {
		table, err := calfile.LoadTable(*loadPath)
		if err != nil {
			log.Fatalf("Failed to load calibration: %v", err)
		}
		fmt.Printf("Loaded calibration from: %s\n", *loadPath)
		printSummary(table)
		if *printMap {
			printODMap(table)
		}
		if *imagePath != "" {
			img, err := imageio.LoadGray(*imagePath)
			if err != nil {
				log.Fatalf("Failed to load image: %v", err)
			}
			saveCalibrated(img, table, cfg, *imagePath, cfg.Output.CalibrationDir)
		}
		return
	}

	img, err := imageio.LoadGray(*imagePath)
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}

	region := models.Region{}
	if *roiFlag != "" {
		if region, err = models.ParseRegion(*roiFlag); err != nil {
			log.Fatalf("Invalid -roi: %v", err)
		}
	} else {
		b := img.Bounds()
		region = models.Region{X1: b.Min.X, Y1: b.Min.Y, X2: b.Max.X - 1, Y2: b.Max.Y - 1}
	}

	h := histogram.FromGray(img, region.Rect())
	if h.Total() == 0 {
		log.Fatalf("Region %s does not overlap the image bounds %v", region, img.Bounds())
	}
	fmt.Printf("Wedge region %s: %d pixels\n", region, h.Total())

	// Build the table for this side
	table := cfg.NewTable()
	table.WedgeROI = region

	calibrator := calibration.NewCalibrator(table, cfg.CalibrationParams())
	calibrator.SetProgressCallback(func(stage, message string) {
		if cfg.Output.Verbose || strings.HasPrefix(message, "warning") {
			fmt.Printf("[%s] %s\n", stage, message)
		}
	})

	startTime := time.Now()
	found, err := calibrator.Process(h)
	if err != nil {
		if calibration.IsInputDataError(err) {
			fmt.Printf("\nCalibration failed: %v\n", err)
			fmt.Printf("Gray-scale peaks found: %v\n", found)
			fmt.Printf("OD values configured:   %v\n", cfg.Wedge.ODValues)
			var calErr *calibration.CalibrationError
			if errors.As(err, &calErr) && calErr.Index >= 0 {
				fmt.Printf("Check entry %d of the lists.\n", calErr.Index+1)
			}
			fmt.Println("Edit the OD values (-od or the configuration file) to match the steps visible on the scan and run again.")
			os.Exit(2)
		}
		log.Fatalf("Calibration failed: %v", err)
	}
	fmt.Printf("\nCalibration completed in %.3f seconds\n", time.Since(startTime).Seconds())

	printSummary(table)
	if *printMap {
		printODMap(table)
	}

	outputPath := calfile.PathFor(cfg.Output.CalibrationDir, side)
	if err := calfile.SaveTable(table, outputPath); err != nil {
		log.Fatalf("Failed to save calibration: %v", err)
	}
	fmt.Printf("Calibration saved to: %s\n", outputPath)

	saveCalibrated(img, table, cfg, *imagePath, cfg.Output.CalibrationDir)
}

// parseODValues parses a comma-separated list of OD values
func parseODValues(s string) ([]float64, error) {
	var ods []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("OD value %q: %w", field, err)
		}
		ods = append(ods, v)
	}
	if len(ods) == 0 {
		return nil, fmt.Errorf("no OD values in %q", s)
	}
	return ods, nil
}

func printSummary(table *calibration.Table) {
	wedge := table.Wedge()
	fmt.Printf("\nWedge %q, units %s (%s)\n", table.ManufacturerPartNbr, table.Units, table.UnitsAbbrev)
	fmt.Println("  step   gray      OD")
	for i := 0; i < wedge.Segments(); i++ {
		fmt.Printf("  %4d  %5d  %6.3f\n", i+1, wedge.GrayPeaks[i], wedge.ODValues[i])
	}
	if !table.HasODMap() {
		fmt.Println("No OD map: gray values are reported unchanged")
	}
}

func printODMap(table *calibration.Table) {
	fmt.Println("\nGray-to-OD map:")
	for g, od := range table.Map() {
		fmt.Printf("%3d %8.4f\n", g, od)
	}
}

// saveCalibrated writes the calibrated image when enabled in the configuration
func saveCalibrated(img *image.Gray, table *calibration.Table, cfg *config.Config, imagePath, dir string) {
	if !cfg.Output.SaveCalibratedImage {
		return
	}

	viewer := visualization.NewViewer(img, table, cfg.Output.DisplayMaxOD)
	base := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	outPath := filepath.Join(dir, base+"_od.tif")
	if err := viewer.SaveCalibratedImage(outPath); err != nil {
		log.Printf("Warning: Failed to save calibrated image: %v", err)
		return
	}
	fmt.Printf("Calibrated image saved to: %s\n", outPath)

	if stats, err := viewer.MeasureRegion(table.WedgeROI.Rect()); err == nil && !table.WedgeROI.Empty() {
		fmt.Printf("Wedge region mean %.3f %s (min %.3f, max %.3f)\n", stats.Mean, table.UnitsAbbrev, stats.Min, stats.Max)
	}
}
