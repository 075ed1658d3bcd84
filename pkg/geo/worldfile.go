package geo

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedWorldFile is returned when a world file does not contain
// exactly six parseable floats.
var ErrMalformedWorldFile = errors.New("malformed world file")

// Transform holds the six affine parameters of a world file (.tfw/.jgw),
// one per line in this fixed order.
type Transform struct {
	PixelSizeX float64
	RotationX  float64
	RotationY  float64
	PixelSizeY float64
	OriginX    float64
	OriginY    float64
}

// ReadTransform parses a world file. A missing file yields an os.ErrNotExist
// wrapped error; anything else unparseable yields ErrMalformedWorldFile.
// Both are non-fatal to a batch: the orchestrator marks the image failed
// and moves on.
func ReadTransform(path string) (*Transform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open world file: %w", err)
	}
	defer f.Close()

	var params []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrMalformedWorldFile, line)
		}
		params = append(params, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read world file: %w", err)
	}
	if len(params) != 6 {
		return nil, fmt.Errorf("%w: expected 6 parameters, got %d", ErrMalformedWorldFile, len(params))
	}

	return &Transform{
		PixelSizeX: params[0],
		RotationX:  params[1],
		RotationY:  params[2],
		PixelSizeY: params[3],
		OriginX:    params[4],
		OriginY:    params[5],
	}, nil
}

// ToMapCoords maps a pixel coordinate to map space. The rotation terms are
// parsed but intentionally not applied: source rasters are assumed
// axis-aligned, matching the upstream tooling that produces them.
func (t *Transform) ToMapCoords(px, py float64) (mapX, mapY float64) {
	mapX = t.OriginX + px*t.PixelSizeX
	mapY = t.OriginY + py*t.PixelSizeY
	return mapX, mapY
}
