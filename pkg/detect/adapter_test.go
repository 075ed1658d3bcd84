package detect

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodetect/internal/config"
	"geodetect/pkg/types"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakePredictor returns a fixed detection set for every image.
type fakePredictor struct {
	dets   []types.Detection
	err    error
	loaded bool
	// path the last Predict call received, to assert temp-file routing
	lastPath string
}

func (f *fakePredictor) Load(ctx context.Context) (map[int]string, error) {
	f.loaded = true
	return map[int]string{0: "abnormal", 1: "normal"}, nil
}

func (f *fakePredictor) Predict(ctx context.Context, imagePath string, params types.PredictParams) ([]types.Detection, error) {
	f.lastPath = imagePath
	return f.dets, f.err
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	switch filepath.Ext(name) {
	case ".png":
		require.NoError(t, png.Encode(f, img))
	default:
		require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
	}
	return path
}

func newTestAdapter(t *testing.T, p *fakePredictor, cfg *config.Config) *Adapter {
	t.Helper()
	labels, err := p.Load(context.Background())
	require.NoError(t, err)
	return NewAdapter(p, cfg, labels, discardLogger())
}

// Class ids 0,0,1,2 bucket into 2 abnormal, 1 normal; the unrecognized
// class contributes to neither.
func TestDetectBucketCounting(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeImage(t, dir, "tile.jpg")

	p := &fakePredictor{dets: []types.Detection{
		{Box: [4]float64{0, 0, 5, 5}, ClassID: 0, Confidence: 0.9},
		{Box: [4]float64{5, 5, 10, 10}, ClassID: 0, Confidence: 0.8},
		{Box: [4]float64{10, 10, 15, 15}, ClassID: 1, Confidence: 0.7},
		{Box: [4]float64{15, 15, 20, 20}, ClassID: 2, Confidence: 0.6},
	}}
	adapter := newTestAdapter(t, p, config.Default())

	dets, summary := adapter.Detect(context.Background(), imagePath)
	require.NoError(t, summary.Err)

	assert.Len(t, dets, 4)
	assert.Equal(t, 2, summary.AbnormalCount)
	assert.Equal(t, 1, summary.NormalCount)
	assert.Equal(t, "40x30", summary.ImageSize)
}

func TestDetectConfiguredBuckets(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeImage(t, dir, "tile.jpg")

	cfg := config.Default()
	cfg.AbnormalClass = 3
	cfg.NormalClass = 4

	p := &fakePredictor{dets: []types.Detection{
		{Box: [4]float64{0, 0, 5, 5}, ClassID: 3, Confidence: 0.9},
		{Box: [4]float64{5, 5, 10, 10}, ClassID: 0, Confidence: 0.8},
	}}
	adapter := newTestAdapter(t, p, cfg)

	_, summary := adapter.Detect(context.Background(), imagePath)
	require.NoError(t, summary.Err)
	assert.Equal(t, 1, summary.AbnormalCount)
	assert.Equal(t, 0, summary.NormalCount)
}

func TestDetectPredictorError(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeImage(t, dir, "tile.jpg")

	p := &fakePredictor{err: errors.New("inference exploded")}
	adapter := newTestAdapter(t, p, config.Default())

	dets, summary := adapter.Detect(context.Background(), imagePath)
	assert.Nil(t, dets)
	require.Error(t, summary.Err)
	assert.Contains(t, summary.Err.Error(), "inference exploded")
}

func TestDetectInvalidImage(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(imagePath, []byte("not an image"), 0644))

	adapter := newTestAdapter(t, &fakePredictor{}, config.Default())

	dets, summary := adapter.Detect(context.Background(), imagePath)
	assert.Nil(t, dets)
	assert.Error(t, summary.Err)
}

// A non-canonical input is routed to the predictor through a temporary
// canonical copy, which is gone again after the call.
func TestDetectTempFileRoutingAndCleanup(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeImage(t, dir, "tile.png")

	p := &fakePredictor{}
	adapter := newTestAdapter(t, p, config.Default())

	_, summary := adapter.Detect(context.Background(), imagePath)
	require.NoError(t, summary.Err)

	assert.True(t, summary.Converted)
	expectedTemp := filepath.Join(dir, "tile_temp_rgb.jpg")
	assert.Equal(t, expectedTemp, p.lastPath)
	assert.NoFileExists(t, expectedTemp)
}

func TestDetectTempCleanupOnPredictError(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeImage(t, dir, "tile.png")

	p := &fakePredictor{err: errors.New("boom")}
	adapter := newTestAdapter(t, p, config.Default())

	_, summary := adapter.Detect(context.Background(), imagePath)
	require.Error(t, summary.Err)
	assert.NoFileExists(t, filepath.Join(dir, "tile_temp_rgb.jpg"))
}

func TestDetectSavesAnnotatedFrame(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeImage(t, dir, "tile.jpg")

	cfg := config.Default()
	cfg.SaveAnnotated = true
	cfg.AnnotatedFolder = filepath.Join(dir, "annotated")

	p := &fakePredictor{dets: []types.Detection{
		{Box: [4]float64{2, 2, 20, 20}, ClassID: 0, Confidence: 0.9},
	}}
	adapter := newTestAdapter(t, p, cfg)

	_, summary := adapter.Detect(context.Background(), imagePath)
	require.NoError(t, summary.Err)
	assert.FileExists(t, filepath.Join(cfg.AnnotatedFolder, "tile_annotated.jpg"))
}
