package geo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	kml "github.com/twpayne/go-kml/v2"

	"geodetect/internal/utils"
)

// SaveGeoJSON writes the feature collection next to the source image as
// <basename>.geojson. When that name is taken an incrementing _<n> suffix
// is appended, so no run silently overwrites another run's output.
func SaveGeoJSON(fc *geojson.FeatureCollection, imagePath string) (string, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal feature collection: %w", err)
	}

	base := utils.StripExt(filepath.Base(imagePath))
	outPath := utils.NextFreePath(filepath.Dir(imagePath), base, ".geojson")

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return "", fmt.Errorf("write geojson: %w", err)
	}
	return outPath, nil
}

// ConvertToKML re-expresses a just-written GeoJSON file as KML, one
// placemark per feature named by its label property. Best-effort: the
// caller logs failures and keeps the GeoJSON artifact.
func ConvertToKML(geojsonPath, kmlPath string) error {
	fc, err := readFeatureCollection(geojsonPath)
	if err != nil {
		return err
	}

	doc := kml.Document()
	for _, f := range fc.Features {
		point, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		name := "Unnamed"
		if label, ok := f.Properties["label"].(string); ok && label != "" {
			name = label
		}
		doc.Add(kml.Placemark(
			kml.Name(name),
			kml.Point(kml.Coordinates(kml.Coordinate{Lon: point[0], Lat: point[1]})),
		))
	}

	out, err := os.Create(kmlPath)
	if err != nil {
		return fmt.Errorf("create kml: %w", err)
	}
	defer out.Close()

	if err := kml.KML(doc).WriteIndent(out, "", "  "); err != nil {
		return fmt.Errorf("write kml: %w", err)
	}
	return nil
}

// ConvertToSHP re-expresses a just-written GeoJSON file as a point
// shapefile with LABEL, CONF and CLASS_ID attributes. The .shx and .dbf
// sidecars are produced per shapefile convention. Best-effort like KML.
func ConvertToSHP(geojsonPath, shpPath string) error {
	fc, err := readFeatureCollection(geojsonPath)
	if err != nil {
		return err
	}

	w, err := shp.Create(shpPath, shp.POINT)
	if err != nil {
		return fmt.Errorf("create shapefile: %w", err)
	}
	defer w.Close()

	w.SetFields([]shp.Field{
		shp.StringField("LABEL", 64),
		shp.FloatField("CONF", 10, 4),
		shp.NumberField("CLASS_ID", 10),
	})

	row := 0
	for _, f := range fc.Features {
		point, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		w.Write(&shp.Point{X: point[0], Y: point[1]})

		label := ""
		if s, ok := f.Properties["label"].(string); ok {
			label = s
		}
		w.WriteAttribute(row, 0, label)
		w.WriteAttribute(row, 1, propFloat(f.Properties, "confidence"))
		w.WriteAttribute(row, 2, int64(propFloat(f.Properties, "class_id")))
		row++
	}
	return nil
}

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	return fc, nil
}

// propFloat tolerates the numeric widening that happens on the JSON
// round-trip through the saved GeoJSON file.
func propFloat(props geojson.Properties, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
