package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"geodetect/internal/config"
	"geodetect/internal/logging"
	"geodetect/pkg/batch"
	"geodetect/pkg/client"
	"geodetect/pkg/ollamavision"
	"geodetect/pkg/types"
	"geodetect/pkg/yolosrv"
)

func main() {
	_ = godotenv.Load()
	log := logging.NewLogger()

	var folder, configPath, model, backend, serverURL, classes, annotatedFolder string
	var imgsz, maxDet, lineWidth int
	var conf, iou float64
	var convertKML, convertSHP, saveAnnotated, showLabels, showConf bool

	flag.StringVar(&folder, "folder", "", "path to the folder containing images")
	flag.StringVar(&configPath, "config", "", "path to a JSON config file")
	flag.StringVar(&model, "model", "", "model identifier or weights path")
	flag.StringVar(&backend, "backend", "", "detection backend: yolosrv or ollama")
	flag.StringVar(&serverURL, "url", "", "inference server URL")
	flag.IntVar(&imgsz, "imgsz", 0, "inference image size")
	flag.Float64Var(&conf, "conf", 0, "confidence threshold (0..1)")
	flag.Float64Var(&iou, "iou", 0, "IoU threshold (0..1)")
	flag.IntVar(&maxDet, "max-det", 0, "detection cap per image")
	flag.StringVar(&classes, "classes", "", "comma-separated class ids to detect")
	flag.BoolVar(&convertKML, "kml", false, "also convert GeoJSON output to KML")
	flag.BoolVar(&convertSHP, "shp", false, "also convert GeoJSON output to SHP")
	flag.BoolVar(&saveAnnotated, "save-annotated", false, "save annotated frames with bounding boxes")
	flag.StringVar(&annotatedFolder, "annotated-folder", "", "folder for annotated frames (default: 'annotated' subfolder)")
	flag.IntVar(&lineWidth, "line-width", 0, "bounding box line width")
	flag.BoolVar(&showLabels, "show-labels", true, "draw class labels on annotated frames")
	flag.BoolVar(&showConf, "show-conf", true, "draw confidence values on annotated frames")
	flag.Parse()

	if folder == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -folder images/ [-model name] [-backend yolosrv|ollama] [-kml] [-shp] [-save-annotated]\n",
			filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg := loadConfig(configPath, log)
	applyEnv(cfg)

	// Flags override the config file.
	if model != "" {
		cfg.Model = model
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if imgsz > 0 {
		cfg.ImageSize = imgsz
	}
	if conf > 0 {
		cfg.Conf = conf
	}
	if iou > 0 {
		cfg.IoU = iou
	}
	if maxDet > 0 {
		cfg.MaxDet = maxDet
	}
	if classes != "" {
		cfg.Classes = config.FromSettings(map[string]string{"classes": classes}).Classes
	}
	cfg.ConvertKML = cfg.ConvertKML || convertKML
	cfg.ConvertSHP = cfg.ConvertSHP || convertSHP
	cfg.SaveAnnotated = cfg.SaveAnnotated || saveAnnotated
	if annotatedFolder != "" {
		cfg.AnnotatedFolder = annotatedFolder
	}
	if lineWidth > 0 {
		cfg.LineWidth = lineWidth
	}
	cfg.ShowLabels = showLabels
	cfg.ShowConf = showConf

	if err := cfg.Validate(); err != nil {
		log.WithField("error", err).Fatal("invalid configuration")
	}

	predictor, err := buildPredictor(cfg)
	if err != nil {
		log.WithField("error", err).Fatal("failed to create detection backend")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting processing with image size: %d\n", cfg.ImageSize)
	fmt.Println("Note: if you experience memory errors, try reducing -imgsz to 640 or 1280")

	orchestrator := batch.New(predictor, cfg, log)
	result := orchestrator.Run(ctx, folder, printProgress)

	if result.Error != "" {
		fmt.Fprintf(os.Stderr, "Batch failed: %s\n", result.Error)
		os.Exit(1)
	}

	fmt.Println("\nProcessing complete!")
	fmt.Printf("Successfully processed: %d/%d\n", result.Successful, result.TotalFiles)
	fmt.Printf("Failed: %d/%d\n", result.Failed, result.TotalFiles)
	fmt.Printf("Total abnormal objects: %d\n", result.TotalAbnormal)
	fmt.Printf("Total normal objects: %d\n", result.TotalNormal)
	fmt.Printf("Total duration: %s\n", result.FormatDuration())

	if result.Failed > 0 {
		fmt.Println("\nTips to reduce failures:")
		fmt.Println("- Reduce -imgsz (try 640, 1280) if you have memory issues")
		fmt.Println("- Check that all images have corresponding .tfw files")
		fmt.Println("- Verify all images are valid and not corrupted")
	}
}

// printProgress writes one JSON line per processed file so a host UI can
// stream the batch state.
func printProgress(record types.ProgressRecord) {
	line, err := json.Marshal(record)
	if err != nil {
		return
	}
	fmt.Println(string(line))
}

func loadConfig(configPath string, log *logrus.Logger) *config.Config {
	if configPath == "" {
		return config.Default()
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.WithFields(logrus.Fields{"path": configPath, "error": err}).Fatal("failed to load config")
	}
	return cfg
}

// applyEnv layers .env/environment overrides under the flag overrides.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("GEODETECT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("GEODETECT_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("GEODETECT_MODEL"); v != "" {
		cfg.Model = v
	}
}

func buildPredictor(cfg *config.Config) (client.Predictor, error) {
	switch cfg.Backend {
	case "yolosrv", "":
		return yolosrv.NewClient(cfg.ServerURL, cfg.ResolveModelPath())
	case "ollama":
		labels := map[int]string{
			cfg.AbnormalClass: "abnormal",
			cfg.NormalClass:   "normal",
		}
		return ollamavision.NewClient(cfg.ServerURL, cfg.Model, labels)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'yolosrv' or 'ollama')", cfg.Backend)
	}
}
