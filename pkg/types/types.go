package types

import "fmt"

// Detection represents a single detected object in pixel space.
// Box holds the corner coordinates (x1, y1, x2, y2) with x2 >= x1 and y2 >= y1.
type Detection struct {
	Box        [4]float64 `json:"box"`
	ClassID    int        `json:"class_id"`
	Confidence float64    `json:"confidence"`
}

// Center returns the midpoint of the bounding box.
func (d Detection) Center() (x, y float64) {
	return (d.Box[0] + d.Box[2]) / 2, (d.Box[1] + d.Box[3]) / 2
}

// PredictParams contains the parameters passed to the detection backend.
type PredictParams struct {
	ImageSize int     `json:"imgsz"`
	Conf      float64 `json:"conf"`
	IoU       float64 `json:"iou"`
	Classes   []int   `json:"classes,omitempty"`
	MaxDet    int     `json:"max_det"`
}

// Summary accumulates per-image detection results. Err is set when the
// detection stage failed; the detections are then nil and the file is
// counted as failed by the orchestrator.
type Summary struct {
	AbnormalCount int
	NormalCount   int
	ImageSize     string
	ImageMode     string
	Converted     bool
	Err           error
}

// ProgressRecord is emitted once per processed file.
type ProgressRecord struct {
	Processed      int    `json:"processed"`
	Total          int    `json:"total"`
	Successful     int    `json:"successful"`
	Failed         int    `json:"failed"`
	CurrentFile    string `json:"current_file"`
	Status         string `json:"status"`
	FileDuration   string `json:"file_duration,omitempty"`
	AvgTimePerFile string `json:"avg_time_per_file,omitempty"`
	AbnormalCount  int    `json:"abnormal_count"`
	NormalCount    int    `json:"normal_count"`
	ImageInfo      string `json:"image_info,omitempty"`
}

// BatchResult aggregates the outcome of a whole batch run.
type BatchResult struct {
	TotalFiles    int     `json:"total_files"`
	Successful    int     `json:"successful_processed"`
	Failed        int     `json:"failed_processed"`
	TotalAbnormal int     `json:"total_abnormal"`
	TotalNormal   int     `json:"total_normal"`
	TotalTime     float64 `json:"total_time"`
	Error         string  `json:"error,omitempty"`
}

// FormatDuration renders the elapsed batch time the way the CLI summary
// prints it: minutes and seconds when over a minute, seconds otherwise.
func (r BatchResult) FormatDuration() string {
	if r.TotalTime >= 60 {
		minutes := int(r.TotalTime) / 60
		seconds := r.TotalTime - float64(minutes*60)
		return fmt.Sprintf("%d minute(s) and %.2f second(s)", minutes, seconds)
	}
	return fmt.Sprintf("%.2f second(s)", r.TotalTime)
}
