package convert

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/x448/float16"
)

// stubRunner scripts a fixed sequence of (output, error) responses, one per
// call to Run, and records every invocation for assertions.
type stubRunner struct {
	responses []stubResponse
	calls     int
	names     []string
}

type stubResponse struct {
	out string
	err error
}

func (s *stubRunner) Run(name string, args ...string) (string, error) {
	s.names = append(s.names, name)
	if s.calls >= len(s.responses) {
		return "", nil
	}
	r := s.responses[s.calls]
	s.calls++
	return r.out, r.err
}

type exitError struct{ msg string }

func (e exitError) Error() string { return e.msg }

func writeDummyTFLite(t *testing.T, dir string, float16Tensor bool) string {
	t.Helper()
	b := flatbuffers.NewBuilder(128)

	var dataVec flatbuffers.UOffsetT
	if float16Tensor {
		raw := make([]byte, 2)
		binary.LittleEndian.PutUint16(raw, float16.Fromfloat32(1.0).Bits())
		dataVec = b.CreateByteVector(raw)
	}
	b.StartObject(3)
	if dataVec != 0 {
		b.PrependUOffsetTSlot(0, dataVec, 0)
	}
	root := b.EndObject()
	b.Finish(root)

	path := filepath.Join(dir, "model.tflite")
	if err := os.WriteFile(path, b.FinishedBytes(), 0o644); err != nil {
		t.Fatalf("write dummy tflite: %v", err)
	}
	return path
}

func TestTFLiteToONNXSucceedsOnFirstTry(t *testing.T) {
	dir := t.TempDir()
	src := writeDummyTFLite(t, dir, false)
	onnx := filepath.Join(dir, "model.onnx")

	runner := &stubRunner{responses: []stubResponse{{out: "ok", err: nil}}}
	// the runner reports success; create the output file so the
	// post-condition check in runTFLite2ONNX passes.
	if err := os.WriteFile(onnx, []byte{}, 0o644); err != nil {
		t.Fatalf("seed onnx: %v", err)
	}

	if err := TFLiteToONNX(runner, src, onnx); err != nil {
		t.Fatalf("TFLiteToONNX: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected 1 converter invocation, got %d", runner.calls)
	}
}

func TestTFLiteToONNXRetriesAfterFP16Upcast(t *testing.T) {
	dir := t.TempDir()
	src := writeDummyTFLite(t, dir, true)
	onnx := filepath.Join(dir, "model.onnx")

	runner := &stubRunner{responses: []stubResponse{
		{out: "", err: exitError{"float16 not supported by this op"}},
		{out: "ok", err: nil},
	}}

	// the retry wrapper creates the onnx file only once the upcast retry
	// runs, mirroring a converter that only succeeds against fp32 input.
	wrapped := &writeOnRetryRunner{stubRunner: runner, onnxPath: onnx}

	if err := TFLiteToONNX(wrapped, src, onnx); err != nil {
		t.Fatalf("TFLiteToONNX: %v", err)
	}
	if wrapped.calls != 2 {
		t.Fatalf("expected 2 converter invocations (original + retry), got %d", wrapped.calls)
	}
}

// writeOnRetryRunner creates the onnx output file on its second call,
// mimicking a converter that succeeds only against the upcast model.
type writeOnRetryRunner struct {
	*stubRunner
	onnxPath string
}

func (w *writeOnRetryRunner) Run(name string, args ...string) (string, error) {
	out, err := w.stubRunner.Run(name, args...)
	if w.stubRunner.calls == 2 {
		_ = os.WriteFile(w.onnxPath, []byte{}, 0o644)
	}
	return out, err
}

func TestTFLiteToONNXReportsNonRetryableRule(t *testing.T) {
	dir := t.TempDir()
	src := writeDummyTFLite(t, dir, false)
	onnx := filepath.Join(dir, "model.onnx")

	runner := &stubRunner{responses: []stubResponse{
		{out: "", err: exitError{"unsupported Select TF Ops detected in subgraph"}},
	}}

	err := TFLiteToONNX(runner, src, onnx)
	if err == nil {
		t.Fatalf("expected error")
	}
	convErr, ok := err.(*ConversionError)
	if !ok {
		t.Fatalf("expected *ConversionError, got %T", err)
	}
	if convErr.Tag != RuleSelectTFOpsOrFlex {
		t.Fatalf("tag = %q, want %q", convErr.Tag, RuleSelectTFOpsOrFlex)
	}
	if runner.calls != 1 {
		t.Fatalf("expected no retry, got %d calls", runner.calls)
	}
}

func TestClassifyRuleTable(t *testing.T) {
	cases := []struct {
		log  string
		want RuleTag
	}{
		{"Error: float16 not supported on this backend", RuleFP16NotSupported},
		{"Flex ops are not convertible", RuleSelectTFOpsOrFlex},
		{"unknown op: DENSIFY", RuleUnknownCustomOp},
		{"shape inference failed: dim 2 mismatch", RuleShapeInference},
		{"some completely unrelated failure", RuleUnknown},
	}
	for _, c := range cases {
		got := classify(c.log)
		if got.Tag != c.want {
			t.Errorf("classify(%q) = %q, want %q", c.log, got.Tag, c.want)
		}
	}
}

func TestTorchToONNXRejectsDynamicBatchByDefault(t *testing.T) {
	runner := &stubRunner{}
	spec := TorchExportSpec{ModulePath: "m.pt", InputShape: []int{4, 3, 224, 224}}
	err := TorchToONNX(runner, spec, "out.onnx")
	if err != ErrDynamicBatch {
		t.Fatalf("err = %v, want ErrDynamicBatch", err)
	}
	if runner.calls != 0 {
		t.Fatalf("expected no converter invocation before validation passes")
	}
}

func TestTorchToONNXAllowsFixedBatchOne(t *testing.T) {
	runner := &stubRunner{responses: []stubResponse{{out: "ok", err: nil}}}
	spec := TorchExportSpec{ModulePath: "m.pt", InputShape: []int{1, 3, 224, 224}}
	if err := TorchToONNX(runner, spec, "out.onnx"); err != nil {
		t.Fatalf("TorchToONNX: %v", err)
	}
}

func TestTorchToONNXRejectsOpsetBelowMinimum(t *testing.T) {
	runner := &stubRunner{}
	spec := TorchExportSpec{ModulePath: "m.pt", InputShape: []int{1, 3, 224, 224}, Opset: 9}
	if err := TorchToONNX(runner, spec, "out.onnx"); err == nil {
		t.Fatalf("expected opset validation error")
	}
}
