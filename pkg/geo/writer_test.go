package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodetect/pkg/types"
)

func buildTestCollection(t *testing.T) *geojson.FeatureCollection {
	t.Helper()
	tr := &Transform{PixelSizeX: 0.5, PixelSizeY: -0.5, OriginX: 431000, OriginY: 9112000}
	dets := []types.Detection{
		{Box: [4]float64{10, 10, 30, 30}, ClassID: 0, Confidence: 0.91},
		{Box: [4]float64{50, 60, 90, 100}, ClassID: 1, Confidence: 0.42},
	}
	return BuildFeatureCollection(dets, tr, testLabels)
}

func TestSaveGeoJSON(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "tile_07.tif")
	fc := buildTestCollection(t)

	outPath, err := SaveGeoJSON(fc, imagePath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tile_07.geojson"), outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	parsed, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, parsed.Features, 2)
	assert.Equal(t, "abnormal", parsed.Features[0].Properties["label"])
}

// Writing twice for the same source image must never overwrite: the second
// write gets a _1 suffix, the third _2.
func TestSaveGeoJSONCollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "tile.tif")
	fc := buildTestCollection(t)

	first, err := SaveGeoJSON(fc, imagePath)
	require.NoError(t, err)
	second, err := SaveGeoJSON(fc, imagePath)
	require.NoError(t, err)
	third, err := SaveGeoJSON(fc, imagePath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "tile.geojson"), first)
	assert.Equal(t, filepath.Join(dir, "tile_1.geojson"), second)
	assert.Equal(t, filepath.Join(dir, "tile_2.geojson"), third)
}

func TestSaveGeoJSONEmptyCollection(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "empty.tif")

	outPath, err := SaveGeoJSON(geojson.NewFeatureCollection(), imagePath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
}

func TestConvertToKML(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "tile.tif")
	geojsonPath, err := SaveGeoJSON(buildTestCollection(t), imagePath)
	require.NoError(t, err)

	kmlPath := strings.TrimSuffix(geojsonPath, ".geojson") + ".kml"
	require.NoError(t, ConvertToKML(geojsonPath, kmlPath))

	data, err := os.ReadFile(kmlPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "<Placemark>")
	assert.Contains(t, content, "<name>abnormal</name>")
	assert.Contains(t, content, "<name>normal</name>")
}

func TestConvertToKMLMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := ConvertToKML(filepath.Join(dir, "missing.geojson"), filepath.Join(dir, "out.kml"))
	assert.Error(t, err)
}

func TestConvertToSHP(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "tile.tif")
	geojsonPath, err := SaveGeoJSON(buildTestCollection(t), imagePath)
	require.NoError(t, err)

	shpPath := strings.TrimSuffix(geojsonPath, ".geojson") + ".shp"
	require.NoError(t, ConvertToSHP(geojsonPath, shpPath))

	// Shapefile convention: the .shx and .dbf sidecars accompany the .shp.
	assert.FileExists(t, shpPath)
	assert.FileExists(t, strings.TrimSuffix(shpPath, ".shp")+".shx")
	assert.FileExists(t, strings.TrimSuffix(shpPath, ".shp")+".dbf")
}

func TestConvertToSHPMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := ConvertToSHP(filepath.Join(dir, "missing.geojson"), filepath.Join(dir, "out.shp"))
	assert.Error(t, err)
}
