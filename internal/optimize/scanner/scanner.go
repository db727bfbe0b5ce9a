// Package scanner discovers model files under a root directory and
// classifies them into the formats the optimization pipeline understands.
package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Format is a recognized model file format.
type Format string

const (
	FormatPT          Format = "pt"
	FormatTFLite      Format = "tflite"
	FormatONNX        Format = "onnx"
	FormatTorchScript Format = "torchscript"
)

// QuantizationHint describes a model's declared quantization, when known
// from its file naming convention.
type QuantizationHint string

const (
	QuantNone QuantizationHint = "none"
	QuantInt8 QuantizationHint = "int8"
	QuantFP16 QuantizationHint = "fp16"
)

// ModelArtifact is one discovered model file.
type ModelArtifact struct {
	Path         string
	Format       Format
	InputShapes  map[string][]int
	Quantization QuantizationHint
}

var extFormats = map[string]Format{
	".pt":          FormatPT,
	".tflite":      FormatTFLite,
	".onnx":        FormatONNX,
	".torchscript": FormatTorchScript,
	".pts":         FormatTorchScript,
}

// classify maps a file extension to a Format, or false if unrecognized.
func classify(path string) (Format, bool) {
	f, ok := extFormats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// quantizationHint infers a quantization hint from filename conventions
// (e.g. "mobilenet_int8.tflite", "model-fp16.onnx"). Files with no marker
// are assumed unquantized.
func quantizationHint(path string) QuantizationHint {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(base, "int8"):
		return QuantInt8
	case strings.Contains(base, "fp16") || strings.Contains(base, "float16"):
		return QuantFP16
	default:
		return QuantNone
	}
}

const defaultMaxFiles = 10000

// Scan walks root and returns a ModelArtifact for every file whose extension
// matches a recognized format. Unreadable entries are skipped, not fatal.
func Scan(root string) ([]ModelArtifact, error) {
	var artifacts []ModelArtifact

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		format, ok := classify(path)
		if !ok {
			return nil
		}
		artifacts = append(artifacts, ModelArtifact{
			Path:         path,
			Format:       format,
			Quantization: quantizationHint(path),
		})
		if len(artifacts) >= defaultMaxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return artifacts, nil
}
