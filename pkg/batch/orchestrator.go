// Package batch drives the per-file pipeline over a folder of rasters:
// normalize, detect, georeference, write vector output, convert formats.
// One logical worker, strictly sequential; every failure is contained at
// the file boundary.
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"geodetect/internal/config"
	"geodetect/internal/utils"
	"geodetect/pkg/client"
	"geodetect/pkg/detect"
	"geodetect/pkg/geo"
	"geodetect/pkg/types"
)

// gcInterval is how many files are processed between explicit GC passes.
// Large tiles leave behind sizable short-lived buffers; reclaiming them
// periodically keeps long batches from ballooning.
const gcInterval = 5

// ProgressFunc receives one record per completed file. It runs on the
// batch goroutine and must be cheap and non-blocking.
type ProgressFunc func(types.ProgressRecord)

type Orchestrator struct {
	cfg       *config.Config
	predictor client.Predictor
	log       *logrus.Logger
}

func New(predictor client.Predictor, cfg *config.Config, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		predictor: predictor,
		log:       log,
	}
}

// Run processes every raster in folder and returns the aggregate result.
// The only fatal precondition is the model failing to load; everything
// after that is per-file bookkeeping. Run never panics: failures inside a
// file's pipeline are recovered and counted against that file.
func (o *Orchestrator) Run(ctx context.Context, folder string, progress ProgressFunc) types.BatchResult {
	start := time.Now()

	labels, err := o.predictor.Load(ctx)
	if err != nil {
		o.log.WithField("error", err).Error("model load failed, aborting batch")
		return types.BatchResult{Error: fmt.Sprintf("failed to load model: %v", err)}
	}

	// Effective per-run config: the caller's config stays untouched.
	runCfg := *o.cfg
	if runCfg.SaveAnnotated && runCfg.AnnotatedFolder == "" {
		runCfg.AnnotatedFolder = filepath.Join(folder, "annotated")
	}
	adapter := detect.NewAdapter(o.predictor, &runCfg, labels, o.log)

	files, err := utils.ListRasterFiles(folder)
	if err != nil {
		return types.BatchResult{Error: err.Error()}
	}
	o.log.WithFields(logrus.Fields{"folder": folder, "files": len(files)}).Info("starting batch")

	result := types.BatchResult{TotalFiles: len(files)}
	var durations []float64

	for index, imagePath := range files {
		if ctx.Err() != nil {
			o.log.WithField("error", ctx.Err()).Warn("batch cancelled")
			break
		}

		fileStart := time.Now()
		summary, status, ok := o.processFile(ctx, adapter, &runCfg, imagePath)
		fileDuration := time.Since(fileStart).Seconds()

		record := types.ProgressRecord{
			Processed:     index + 1,
			Total:         len(files),
			CurrentFile:   filepath.Base(imagePath),
			Status:        status,
			AbnormalCount: summary.AbnormalCount,
			NormalCount:   summary.NormalCount,
			ImageInfo:     summary.ImageSize,
		}

		if ok {
			result.Successful++
			result.TotalAbnormal += summary.AbnormalCount
			result.TotalNormal += summary.NormalCount

			durations = append(durations, fileDuration)
			record.FileDuration = fmt.Sprintf("%.2fs", fileDuration)
			record.AvgTimePerFile = fmt.Sprintf("%.2fs", average(durations))
		} else {
			result.Failed++
			o.log.WithFields(logrus.Fields{"file": imagePath, "status": status}).
				Warn("file failed")
		}

		record.Successful = result.Successful
		record.Failed = result.Failed
		if progress != nil {
			progress(record)
		}

		if (index+1)%gcInterval == 0 {
			runtime.GC()
		}
	}

	result.TotalTime = time.Since(start).Seconds()
	o.log.WithFields(logrus.Fields{
		"successful": result.Successful,
		"failed":     result.Failed,
		"abnormal":   result.TotalAbnormal,
		"normal":     result.TotalNormal,
		"seconds":    result.TotalTime,
	}).Info("batch complete")
	return result
}

// processFile runs the whole pipeline for one raster. The boolean result
// distinguishes succeeded from failed; status carries the human-readable
// outcome for the progress record.
func (o *Orchestrator) processFile(ctx context.Context, adapter *detect.Adapter, cfg *config.Config, imagePath string) (summary types.Summary, status string, ok bool) {
	// A panic anywhere in a file's pipeline is that file's failure, not
	// the batch's.
	defer func() {
		if r := recover(); r != nil {
			summary = types.Summary{}
			status = fmt.Sprintf("Error: %v", r)
			ok = false
		}
	}()

	dets, summary := adapter.Detect(ctx, imagePath)
	if summary.Err != nil {
		return summary, fmt.Sprintf("Error: %v", summary.Err), false
	}

	transform, err := geo.ReadTransform(utils.StripExt(imagePath) + ".tfw")
	if err != nil {
		return summary, fmt.Sprintf("Error: no valid world file: %v", err), false
	}

	fc := geo.BuildFeatureCollection(dets, transform, adapter.Labels())
	geojsonPath, err := geo.SaveGeoJSON(fc, imagePath)
	if err != nil {
		return summary, fmt.Sprintf("Error: %v", err), false
	}

	// Format conversions are best-effort: the GeoJSON artifact already
	// stands, so a converter failure never fails the file.
	if cfg.ConvertKML {
		kmlPath := strings.TrimSuffix(geojsonPath, ".geojson") + ".kml"
		if err := geo.ConvertToKML(geojsonPath, kmlPath); err != nil {
			o.log.WithFields(logrus.Fields{"file": imagePath, "error": err}).
				Warn("KML conversion failed")
		}
	}
	if cfg.ConvertSHP {
		shpPath := strings.TrimSuffix(geojsonPath, ".geojson") + ".shp"
		if err := geo.ConvertToSHP(geojsonPath, shpPath); err != nil {
			o.log.WithFields(logrus.Fields{"file": imagePath, "error": err}).
				Warn("SHP conversion failed")
		}
	}

	return summary, "Processed successfully", true
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
