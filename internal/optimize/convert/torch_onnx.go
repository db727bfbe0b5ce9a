package convert

import (
	"fmt"
)

// MinOpset is the lowest ONNX opset this pipeline will export with.
const MinOpset = 13

// ErrDynamicBatch is returned when a caller asks for a batch dimension other
// than 1 without explicitly overriding the fixed-batch default.
var ErrDynamicBatch = fmt.Errorf("dynamic batch export is forbidden; fix batch dim at 1 or set AllowDynamicBatch")

// TorchExportSpec describes a PyTorch module export to ONNX via an
// intermediate TorchScript trace.
type TorchExportSpec struct {
	ModulePath        string // path to a serialized/scriptable module reference
	InputShape        []int  // fixed input shape, batch dim first
	Opset             int    // 0 uses MinOpset
	AllowDynamicBatch bool
}

func (s TorchExportSpec) resolvedOpset() int {
	if s.Opset == 0 {
		return MinOpset
	}
	return s.Opset
}

func (s TorchExportSpec) validate() error {
	if s.resolvedOpset() < MinOpset {
		return fmt.Errorf("opset %d is below the minimum supported %d", s.resolvedOpset(), MinOpset)
	}
	if len(s.InputShape) == 0 {
		return fmt.Errorf("input shape must be non-empty")
	}
	if s.InputShape[0] != 1 && !s.AllowDynamicBatch {
		return ErrDynamicBatch
	}
	return nil
}

// TorchToONNX traces ModulePath with the fixed InputShape, exports through
// TorchScript to ONNX at onnxPath, and classifies any converter failure the
// same way TFLiteToONNX does. The trace+export step itself is delegated to
// an external converter invocation (torch.onnx.export driven by a small
// trampoline script), since the corpus carries no Go-native PyTorch runtime.
func TorchToONNX(runner CommandRunner, spec TorchExportSpec, onnxPath string) error {
	if err := spec.validate(); err != nil {
		return err
	}

	shapeArg := formatShape(spec.InputShape)
	out, err := runner.Run("torch_export_trampoline",
		"--module", spec.ModulePath,
		"--input_shape", shapeArg,
		"--opset", fmt.Sprintf("%d", spec.resolvedOpset()),
		"--onnx_path", onnxPath,
	)
	if err == nil {
		return nil
	}
	return classify(out + "\n" + err.Error())
}

func formatShape(shape []int) string {
	s := ""
	for i, d := range shape {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", d)
	}
	return s
}
