package l6subject

import (
	"testing"

	"github.com/Kagami/go-face"
)

func TestEncodeDecodeDescriptorRoundTrip(t *testing.T) {
	var d face.Descriptor
	for i := range d {
		d[i] = float32(i) * 0.125
	}

	buf := encodeDescriptor(d)
	got, err := decodeDescriptor(buf)
	if err != nil {
		t.Fatalf("decodeDescriptor: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %v, want %v", got, d)
	}
}

func TestDecodeDescriptorRejectsBadLength(t *testing.T) {
	if _, err := decodeDescriptor([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short buffer")
	}

	buf := make([]byte, 4)
	buf[0] = 64 // count = 64, not 128
	if _, err := decodeDescriptor(buf); err == nil {
		t.Fatalf("expected error for wrong descriptor count")
	}
}

func TestDecodeDescriptorRejectsTruncatedPayload(t *testing.T) {
	var d face.Descriptor
	buf := encodeDescriptor(d)
	if _, err := decodeDescriptor(buf[:len(buf)-4]); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestEuclideanDistanceOfIdenticalDescriptorsIsZero(t *testing.T) {
	var a, b face.Descriptor
	a[0], b[0] = 1, 1
	if d := euclideanDistance(a, b); d != 0 {
		t.Fatalf("distance = %f, want 0", d)
	}
}
