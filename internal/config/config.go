package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds one batch run's settings. It is read-only once the batch
// starts; the orchestrator never mutates it.
type Config struct {
	// Detection
	Model     string  `json:"model"`
	Backend   string  `json:"backend"`
	ServerURL string  `json:"server_url"`
	ImageSize int     `json:"imgsz"`
	Conf      float64 `json:"conf"`
	IoU       float64 `json:"iou"`
	MaxDet    int     `json:"max_det"`
	Classes   []int   `json:"classes,omitempty"`

	// Class-id to bucket mapping. The original tooling hardcoded 0/1;
	// the label set is model-dependent, so it is configuration here.
	AbnormalClass int `json:"abnormal_class"`
	NormalClass   int `json:"normal_class"`

	// Export
	ConvertKML bool `json:"convert_kml"`
	ConvertSHP bool `json:"convert_shp"`

	// Annotation
	SaveAnnotated   bool   `json:"save_annotated"`
	AnnotatedFolder string `json:"annotated_folder"`
	LineWidth       int    `json:"line_width"`
	ShowLabels      bool   `json:"show_labels"`
	ShowConf        bool   `json:"show_conf"`
}

// Default returns a configuration with the documented fallback values.
func Default() *Config {
	return &Config{
		Model:         "yolov8n-pokok-kuning",
		Backend:       "yolosrv",
		ServerURL:     "http://localhost:8093",
		ImageSize:     12800,
		Conf:          0.2,
		IoU:           0.2,
		MaxDet:        10000,
		AbnormalClass: 0,
		NormalClass:   1,
		LineWidth:     2,
		ShowLabels:    true,
		ShowConf:      true,
	}
}

// LoadFromFile loads configuration from a JSON file, filling unset fields
// with defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FromSettings builds a Config from the flat string-typed key/value form
// the legacy settings store persists ("true"/"false" booleans, numbers as
// strings). Unknown, missing or unparseable values fall back to defaults
// rather than failing the run.
func FromSettings(settings map[string]string) *Config {
	c := Default()

	if v, ok := settings["model"]; ok && v != "" {
		c.Model = v
	}
	if v, ok := settings["backend"]; ok && v != "" {
		c.Backend = v
	}
	if v, ok := settings["server_url"]; ok && v != "" {
		c.ServerURL = v
	}
	c.ImageSize = settingInt(settings, "imgsz", c.ImageSize)
	c.Conf = settingFloat(settings, "conf", c.Conf)
	c.IoU = settingFloat(settings, "iou", c.IoU)
	c.MaxDet = settingInt(settings, "max_det", c.MaxDet)
	c.AbnormalClass = settingInt(settings, "abnormal_class", c.AbnormalClass)
	c.NormalClass = settingInt(settings, "normal_class", c.NormalClass)
	c.ConvertKML = settingBool(settings, "convert_kml", c.ConvertKML)
	c.ConvertSHP = settingBool(settings, "convert_shp", c.ConvertSHP)
	c.SaveAnnotated = settingBool(settings, "save_annotated", c.SaveAnnotated)
	if v, ok := settings["annotated_folder"]; ok && v != "" {
		c.AnnotatedFolder = v
	}
	c.LineWidth = settingInt(settings, "line_width", c.LineWidth)
	c.ShowLabels = settingBool(settings, "show_labels", c.ShowLabels)
	c.ShowConf = settingBool(settings, "show_conf", c.ShowConf)

	if v, ok := settings["classes"]; ok && v != "" {
		for _, part := range strings.Split(v, ",") {
			if id, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				c.Classes = append(c.Classes, id)
			}
		}
	}

	return c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must be set")
	}
	if c.ImageSize < 32 {
		return fmt.Errorf("imgsz must be at least 32")
	}
	if c.Conf < 0 || c.Conf > 1 {
		return fmt.Errorf("conf must be between 0 and 1")
	}
	if c.IoU < 0 || c.IoU > 1 {
		return fmt.Errorf("iou must be between 0 and 1")
	}
	if c.MaxDet < 1 {
		return fmt.Errorf("max_det must be positive")
	}
	if c.AbnormalClass == c.NormalClass {
		return fmt.Errorf("abnormal_class and normal_class must differ")
	}
	return nil
}

// ResolveModelPath maps a bare model name onto the conventional model
// directory next to the executable, appending the weights extension.
// Values that already look like a path are returned untouched.
func (c *Config) ResolveModelPath() string {
	if strings.ContainsAny(c.Model, "/\\") || strings.HasSuffix(c.Model, ".pt") {
		return c.Model
	}

	dir := "model"
	if exe, err := os.Executable(); err == nil {
		dir = filepath.Join(filepath.Dir(exe), "model")
	}
	return filepath.Join(dir, c.Model+".pt")
}

func settingInt(settings map[string]string, key string, fallback int) int {
	if v, ok := settings[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func settingFloat(settings map[string]string, key string, fallback float64) float64 {
	if v, ok := settings[key]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func settingBool(settings map[string]string, key string, fallback bool) bool {
	if v, ok := settings[key]; ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return fallback
}
