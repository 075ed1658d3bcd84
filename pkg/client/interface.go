package client

import (
	"context"

	"geodetect/pkg/types"
)

// Predictor is the contract every detection backend implements. The model
// itself is an opaque external capability; only its I/O matters here.
type Predictor interface {
	// Load verifies the model is reachable and returns its class-label map.
	// A Load failure aborts the whole batch before any file is processed.
	Load(ctx context.Context) (map[int]string, error)

	// Predict runs inference on a single image and returns raw detections
	// in pixel space.
	Predict(ctx context.Context, imagePath string, params types.PredictParams) ([]types.Detection, error)
}
