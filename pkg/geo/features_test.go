package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodetect/pkg/types"
)

var testLabels = map[int]string{0: "abnormal", 1: "normal"}

func TestBuildFeatureCollection(t *testing.T) {
	tr := &Transform{PixelSizeX: 1, PixelSizeY: -1, OriginX: 1000, OriginY: 2000}
	dets := []types.Detection{
		{Box: [4]float64{10, 10, 20, 20}, ClassID: 0, Confidence: 0.9},
		{Box: [4]float64{100, 40, 140, 80}, ClassID: 1, Confidence: 0.55},
	}

	fc := BuildFeatureCollection(dets, tr, testLabels)
	require.Len(t, fc.Features, 2)

	first := fc.Features[0]
	point, ok := first.Geometry.(orb.Point)
	require.True(t, ok)
	assert.Equal(t, 1015.0, point[0]) // origin + bbox center * pixel size
	assert.Equal(t, 1985.0, point[1])
	assert.Equal(t, "abnormal", first.Properties["label"])
	assert.Equal(t, 0.9, first.Properties["confidence"])
	assert.Equal(t, 0, first.Properties["class_id"])

	second := fc.Features[1]
	assert.Equal(t, "normal", second.Properties["label"])
}

func TestBuildFeatureCollectionNilInputs(t *testing.T) {
	tr := &Transform{PixelSizeX: 1, PixelSizeY: 1}

	fc := BuildFeatureCollection(nil, nil, testLabels)
	require.NotNil(t, fc)
	assert.Empty(t, fc.Features)

	fc = BuildFeatureCollection(nil, tr, testLabels)
	assert.Empty(t, fc.Features)

	fc = BuildFeatureCollection([]types.Detection{{Box: [4]float64{0, 0, 1, 1}}}, nil, testLabels)
	assert.Empty(t, fc.Features)
}

func TestBuildFeatureCollectionSkipsMalformed(t *testing.T) {
	tr := &Transform{PixelSizeX: 1, PixelSizeY: 1}
	dets := []types.Detection{
		{Box: [4]float64{0, 0, 10, 10}, ClassID: 0, Confidence: 0.8},
		{Box: [4]float64{math.NaN(), 0, 10, 10}, ClassID: 0, Confidence: 0.8},
		{Box: [4]float64{0, 0, math.Inf(1), 10}, ClassID: 1, Confidence: 0.8},
		{Box: [4]float64{5, 5, 15, 15}, ClassID: 1, Confidence: 0.7},
	}

	fc := BuildFeatureCollection(dets, tr, testLabels)
	assert.Len(t, fc.Features, 2)
}

func TestBuildFeatureCollectionUnknownClassLabel(t *testing.T) {
	tr := &Transform{PixelSizeX: 1, PixelSizeY: 1}
	dets := []types.Detection{
		{Box: [4]float64{0, 0, 2, 2}, ClassID: 7, Confidence: 0.5},
	}

	fc := BuildFeatureCollection(dets, tr, testLabels)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "class_7", fc.Features[0].Properties["label"])
}

func TestClassLabel(t *testing.T) {
	assert.Equal(t, "abnormal", ClassLabel(testLabels, 0))
	assert.Equal(t, "class_9", ClassLabel(testLabels, 9))
	assert.Equal(t, "class_3", ClassLabel(nil, 3))
}
