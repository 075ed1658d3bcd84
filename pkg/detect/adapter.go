// Package detect wraps the external detection capability: it normalizes the
// input raster, runs inference, buckets the results into the
// abnormal/normal categories and optionally renders an annotated frame.
package detect

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"geodetect/internal/config"
	"geodetect/pkg/annotate"
	"geodetect/pkg/client"
	"geodetect/pkg/processing"
	"geodetect/pkg/types"
)

type Adapter struct {
	predictor client.Predictor
	cfg       *config.Config
	labels    map[int]string
	log       *logrus.Logger
}

// NewAdapter wires a predictor backend to the batch configuration. labels
// is the class map returned by Predictor.Load at batch start.
func NewAdapter(predictor client.Predictor, cfg *config.Config, labels map[int]string, log *logrus.Logger) *Adapter {
	return &Adapter{
		predictor: predictor,
		cfg:       cfg,
		labels:    labels,
		log:       log,
	}
}

// Labels exposes the class-label map for downstream feature building.
func (a *Adapter) Labels() map[int]string {
	return a.labels
}

// Detect runs the detection stage for one image. Any failure is reported
// through Summary.Err with nil detections; the error never propagates, so
// a bad file cannot abort the batch. The normalizer's temporary file is
// removed on every exit path.
func (a *Adapter) Detect(ctx context.Context, imagePath string) ([]types.Detection, types.Summary) {
	norm, err := processing.Normalize(imagePath)
	if err != nil {
		return nil, types.Summary{Err: fmt.Errorf("invalid image: %w", err)}
	}
	defer a.cleanupTemp(norm.TempPath)

	processingPath := imagePath
	if norm.Converted() {
		processingPath = norm.TempPath
	}

	dets, err := a.predictor.Predict(ctx, processingPath, types.PredictParams{
		ImageSize: a.cfg.ImageSize,
		Conf:      a.cfg.Conf,
		IoU:       a.cfg.IoU,
		Classes:   a.cfg.Classes,
		MaxDet:    a.cfg.MaxDet,
	})

	summary := types.Summary{
		ImageSize: fmt.Sprintf("%dx%d", norm.Width, norm.Height),
		ImageMode: norm.Mode,
		Converted: norm.Converted(),
	}
	if err != nil {
		summary.Err = err
		return nil, summary
	}

	for _, det := range dets {
		switch det.ClassID {
		case a.cfg.AbnormalClass:
			summary.AbnormalCount++
		case a.cfg.NormalClass:
			summary.NormalCount++
		}
	}

	if a.cfg.SaveAnnotated && a.cfg.AnnotatedFolder != "" {
		opts := annotate.Options{
			ShowLabels: a.cfg.ShowLabels,
			ShowConf:   a.cfg.ShowConf,
			LineWidth:  a.cfg.LineWidth,
		}
		if err := annotate.Render(dets, imagePath, a.cfg.AnnotatedFolder, a.labels, opts); err != nil {
			a.log.WithFields(logrus.Fields{"file": imagePath, "error": err}).
				Warn("failed to save annotated frame")
		}
	}

	return dets, summary
}

func (a *Adapter) cleanupTemp(tempPath string) {
	if tempPath == "" {
		return
	}
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		a.log.WithFields(logrus.Fields{"file": tempPath, "error": err}).
			Warn("could not remove temporary file")
	}
}
