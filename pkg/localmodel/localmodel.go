// Package localmodel runs an SSD object detector in-process through the
// OpenCV DNN module. It is compiled in only with the "gocv" build tag; without
// it Load reports ErrUnavailable.
package localmodel

import (
	"image"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned when the local detector cannot be used
var ErrUnavailable = errors.New("local detection model unavailable")

// Config locates the model and sets inference parameters
type Config struct {
	// ModelPath is the frozen graph or ONNX file
	ModelPath string
	// ConfigPath is the optional .pbtxt companion of a TensorFlow graph
	ConfigPath          string
	InputSize           image.Point
	ConfidenceThreshold float32
}

// DefaultConfig matches SSD MobileNet v2 trained on COCO
func DefaultConfig() Config {
	return Config{
		InputSize:           image.Pt(300, 300),
		ConfidenceThreshold: 0.4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InputSize.X <= 0 || c.InputSize.Y <= 0 {
		c.InputSize = d.InputSize
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	return c
}

// cocoClasses is indexed by the TensorFlow SSD class id; gaps are "".
var cocoClasses = []string{
	"background", "person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "", "backpack", "umbrella", "", "",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat",
	"baseball glove", "skateboard", "surfboard", "tennis racket", "bottle", "", "wine glass", "cup", "fork", "knife",
	"spoon", "bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza",
	"donut", "cake", "chair", "couch", "potted plant", "bed", "", "dining table", "", "",
	"toilet", "", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// className returns the label for a class id, or "" for background and unknown ids
func className(id int) string {
	if id <= 0 || id >= len(cocoClasses) {
		return ""
	}
	return cocoClasses[id]
}
