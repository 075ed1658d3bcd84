package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"geodetect/pkg/types"
)

// BuildFeatureCollection converts raw detections into point features in map
// space. Each feature carries the class label, confidence and class id of
// its detection; insertion order follows detection order.
//
// A nil detection slice or nil transform yields an empty collection rather
// than an error: the orchestrator has already recorded the failure upstream.
// A detection with non-finite coordinates is skipped, the rest still build.
func BuildFeatureCollection(dets []types.Detection, t *Transform, labels map[int]string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if dets == nil || t == nil {
		return fc
	}

	for _, det := range dets {
		if !finiteBox(det.Box) {
			continue
		}
		cx, cy := det.Center()
		mapX, mapY := t.ToMapCoords(cx, cy)

		f := geojson.NewFeature(orb.Point{mapX, mapY})
		f.Properties["label"] = ClassLabel(labels, det.ClassID)
		f.Properties["confidence"] = det.Confidence
		f.Properties["class_id"] = det.ClassID
		fc.Append(f)
	}
	return fc
}

// ClassLabel resolves a class id against the model's label map, falling back
// to a synthetic "class_<id>" name for ids the model did not declare.
func ClassLabel(labels map[int]string, classID int) string {
	if label, ok := labels[classID]; ok {
		return label
	}
	return fmt.Sprintf("class_%d", classID)
}

func finiteBox(box [4]float64) bool {
	for _, v := range box {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
