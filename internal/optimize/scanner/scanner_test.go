package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestScanClassifiesByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pt")
	writeFile(t, dir, "b.tflite")
	writeFile(t, dir, "c.onnx")
	writeFile(t, dir, "d.torchscript")
	writeFile(t, dir, "readme.txt")

	artifacts, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(artifacts) != 4 {
		t.Fatalf("got %d artifacts, want 4: %+v", len(artifacts), artifacts)
	}

	byFormat := map[Format]int{}
	for _, a := range artifacts {
		byFormat[a.Format]++
	}
	for _, f := range []Format{FormatPT, FormatTFLite, FormatONNX, FormatTorchScript} {
		if byFormat[f] != 1 {
			t.Errorf("format %s count = %d, want 1", f, byFormat[f])
		}
	}
}

func TestQuantizationHintFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mobilenet_int8.tflite")
	writeFile(t, dir, "resnet-fp16.onnx")
	writeFile(t, dir, "plain.pt")

	artifacts, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	hints := map[string]QuantizationHint{}
	for _, a := range artifacts {
		hints[filepath.Base(a.Path)] = a.Quantization
	}
	if hints["mobilenet_int8.tflite"] != QuantInt8 {
		t.Errorf("int8 hint not detected")
	}
	if hints["resnet-fp16.onnx"] != QuantFP16 {
		t.Errorf("fp16 hint not detected")
	}
	if hints["plain.pt"] != QuantNone {
		t.Errorf("expected no quantization hint for plain.pt")
	}
}

func TestWatchEmitsInitialScanThenNewFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "existing.onnx")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := make(chan ModelArtifact, 8)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, dir, out) }()

	first := <-out
	if filepath.Base(first.Path) != "existing.onnx" {
		t.Fatalf("expected initial scan result first, got %+v", first)
	}

	writeFile(t, dir, "new.tflite")

	select {
	case a := <-out:
		if filepath.Base(a.Path) != "new.tflite" {
			t.Fatalf("expected new.tflite event, got %+v", a)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatalf("timed out waiting for fsnotify event")
	}

	cancel()
	<-done
}
