package convert

import (
	"fmt"
	"os"

	"github.com/dragonx/sentinel/internal/optimize/tflite"
)

// TFLiteToONNX invokes an external converter (tflite2onnx) to turn tflitePath
// into onnxPath. On failure it classifies the error; if the rule is
// fp16_dtype_not_supported it upcasts the model to FLOAT32 and retries once.
// Any other rule is returned without a retry.
func TFLiteToONNX(runner CommandRunner, tflitePath, onnxPath string) error {
	if err := runTFLite2ONNX(runner, tflitePath, onnxPath); err == nil {
		return nil
	} else {
		convErr, ok := err.(*ConversionError)
		if !ok {
			return err
		}
		if !convErr.Tag.Retryable() {
			return convErr
		}

		upcastPath, uerr := upcastAndWrite(tflitePath)
		if uerr != nil {
			return fmt.Errorf("upcast retry: %w (original error: %s)", uerr, convErr)
		}
		defer os.Remove(upcastPath)

		if err := runTFLite2ONNX(runner, upcastPath, onnxPath); err != nil {
			return err
		}
		return nil
	}
}

func runTFLite2ONNX(runner CommandRunner, tflitePath, onnxPath string) error {
	out, err := runner.Run("tflite2onnx", "--tflite_path", tflitePath, "--onnx_path", onnxPath)
	if err == nil {
		if _, statErr := os.Stat(onnxPath); statErr == nil {
			return nil
		}
		err = fmt.Errorf("converter reported success but %s is missing", onnxPath)
	}
	return classify(out + "\n" + err.Error())
}

// upcastAndWrite reads tflitePath, applies tflite.UpcastFloat16, and writes
// the result to a sibling file with a ".fp32.tflite" suffix.
func upcastAndWrite(tflitePath string) (string, error) {
	data, err := os.ReadFile(tflitePath)
	if err != nil {
		return "", err
	}
	out, _, err := tflite.UpcastFloat16(data)
	if err != nil {
		return "", err
	}
	upcastPath := tflitePath + ".fp32.tflite"
	if err := os.WriteFile(upcastPath, out, 0o644); err != nil {
		return "", err
	}
	return upcastPath, nil
}
