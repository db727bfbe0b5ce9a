package tflite

import (
	"encoding/binary"
	"math"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/x448/float16"
)

// buildFloat16Model hand-builds a minimal one-tensor, one-buffer .tflite
// model with a single FLOAT16 tensor, mirroring the field layout schema.go
// reads.
func buildFloat16Model(t *testing.T, values []float32) []byte {
	t.Helper()
	b := flatbuffers.NewBuilder(256)

	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:i*2+2], float16.Fromfloat32(v).Bits())
	}
	dataVec := b.CreateByteVector(raw)
	b.StartObject(3)
	b.PrependUOffsetTSlot(0, dataVec, 0)
	buf1 := b.EndObject()

	b.StartObject(3) // empty buffer[0], required by convention (buffer index 0 is reserved empty)
	buf0 := b.EndObject()

	b.StartVector(4, 2, 4)
	b.PrependUOffsetT(buf1)
	b.PrependUOffsetT(buf0)
	buffersVec := b.EndVector(2)

	shapeVec := buildInt32Vector(b, []int32{int32(len(values))})

	b.StartObject(5)
	b.PrependUOffsetTSlot(0, shapeVec, 0)
	b.PrependInt8Slot(1, int8(Float16), int8(Float32))
	b.PrependUint32Slot(2, 1, 0)
	tensorOff := b.EndObject()

	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(tensorOff)
	tensorsVec := b.EndVector(1)

	b.StartObject(5)
	b.PrependUOffsetTSlot(0, tensorsVec, 0)
	subgraphOff := b.EndObject()

	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(subgraphOff)
	subgraphsVec := b.EndVector(1)

	b.StartObject(5)
	b.PrependUint32Slot(0, 3, 0)
	b.PrependUOffsetTSlot(2, subgraphsVec, 0)
	b.PrependUOffsetTSlot(4, buffersVec, 0)
	root := b.EndObject()

	b.Finish(root)
	return b.FinishedBytes()
}

func TestUpcastFloat16ConvertsTensorAndBuffer(t *testing.T) {
	data := buildFloat16Model(t, []float32{1.5, -2.25})

	out, changed, err := UpcastFloat16(data)
	if err != nil {
		t.Fatalf("UpcastFloat16: %v", err)
	}
	if !changed {
		t.Fatalf("expected changed=true for a model with a FLOAT16 tensor")
	}

	model := GetRootAsModel(out, 0)
	if model.SubgraphsLength() != 1 {
		t.Fatalf("subgraphs = %d, want 1", model.SubgraphsLength())
	}
	sg := model.Subgraphs(0)
	if sg.TensorsLength() != 1 {
		t.Fatalf("tensors = %d, want 1", sg.TensorsLength())
	}
	tensor := sg.Tensors(0)
	if tensor.Type() != Float32 {
		t.Fatalf("tensor type = %d, want Float32", tensor.Type())
	}

	buf := model.Buffers(int(tensor.Buffer()))
	if buf.DataLength() != 8 {
		t.Fatalf("buffer bytes = %d, want 8 (2 float32)", buf.DataLength())
	}
	bits0 := binary.LittleEndian.Uint32(buf.DataBytes()[0:4])
	if math.Float32frombits(bits0) != 1.5 {
		t.Fatalf("first converted value = %f, want 1.5", math.Float32frombits(bits0))
	}
}

// buildFloat16ModelWithMetadata builds the same single-FLOAT16-tensor model
// as buildFloat16Model, plus a description string, a metadata_buffer entry,
// and a named Metadata table pointing at a third (empty) buffer.
func buildFloat16ModelWithMetadata(t *testing.T, values []float32) []byte {
	t.Helper()
	b := flatbuffers.NewBuilder(256)

	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:i*2+2], float16.Fromfloat32(v).Bits())
	}
	dataVec := b.CreateByteVector(raw)
	b.StartObject(3)
	b.PrependUOffsetTSlot(0, dataVec, 0)
	buf1 := b.EndObject()

	b.StartObject(3) // buffer[0], reserved empty
	buf0 := b.EndObject()

	b.StartObject(3) // buffer[2], backs the metadata entry, also empty
	buf2 := b.EndObject()

	b.StartVector(4, 3, 4)
	b.PrependUOffsetT(buf2)
	b.PrependUOffsetT(buf1)
	b.PrependUOffsetT(buf0)
	buffersVec := b.EndVector(3)

	shapeVec := buildInt32Vector(b, []int32{int32(len(values))})

	b.StartObject(5)
	b.PrependUOffsetTSlot(0, shapeVec, 0)
	b.PrependInt8Slot(1, int8(Float16), int8(Float32))
	b.PrependUint32Slot(2, 1, 0)
	tensorOff := b.EndObject()

	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(tensorOff)
	tensorsVec := b.EndVector(1)

	b.StartObject(5)
	b.PrependUOffsetTSlot(0, tensorsVec, 0)
	subgraphOff := b.EndObject()

	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(subgraphOff)
	subgraphsVec := b.EndVector(1)

	descOff := b.CreateString("a test model")

	nameOff := b.CreateString("min_runtime_version")
	b.StartObject(2)
	b.PrependUOffsetTSlot(0, nameOff, 0)
	b.PrependUint32Slot(1, 2, 0)
	metadataEntry := b.EndObject()

	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(metadataEntry)
	metadataVec := b.EndVector(1)

	metadataBufferVec := buildInt32Vector(b, []int32{2})

	b.StartObject(8)
	b.PrependUint32Slot(0, 3, 0)
	b.PrependUOffsetTSlot(2, subgraphsVec, 0)
	b.PrependUOffsetTSlot(3, descOff, 0)
	b.PrependUOffsetTSlot(4, buffersVec, 0)
	b.PrependUOffsetTSlot(5, metadataBufferVec, 0)
	b.PrependUOffsetTSlot(6, metadataVec, 0)
	root := b.EndObject()

	b.Finish(root)
	return b.FinishedBytes()
}

func TestUpcastFloat16PreservesDescriptionAndMetadata(t *testing.T) {
	data := buildFloat16ModelWithMetadata(t, []float32{1.5, -2.25})

	out, changed, err := UpcastFloat16(data)
	if err != nil {
		t.Fatalf("UpcastFloat16: %v", err)
	}
	if !changed {
		t.Fatalf("expected changed=true for a model with a FLOAT16 tensor")
	}

	model := GetRootAsModel(out, 0)
	if model.Description() != "a test model" {
		t.Fatalf("Description() = %q, want %q", model.Description(), "a test model")
	}
	if model.MetadataBufferLength() != 1 || model.MetadataBuffer(0) != 2 {
		t.Fatalf("MetadataBuffer = [%d], want [2]", model.MetadataBuffer(0))
	}
	if model.MetadataLength() != 1 {
		t.Fatalf("MetadataLength() = %d, want 1", model.MetadataLength())
	}
	md := model.Metadata(0)
	if md.Name() != "min_runtime_version" || md.Buffer() != 2 {
		t.Fatalf("Metadata(0) = {%q, %d}, want {min_runtime_version, 2}", md.Name(), md.Buffer())
	}
}

// buildFloat16ModelWithSignatureDefs builds a model carrying one
// signature_defs entry; its internal layout is irrelevant since
// UpcastFloat16 must refuse before inspecting it.
func buildFloat16ModelWithSignatureDefs(t *testing.T) []byte {
	t.Helper()
	b := flatbuffers.NewBuilder(128)

	b.StartObject(3)
	buf0 := b.EndObject()
	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(buf0)
	buffersVec := b.EndVector(1)

	b.StartObject(1)
	sigDef := b.EndObject()
	b.StartVector(4, 1, 4)
	b.PrependUOffsetT(sigDef)
	sigDefsVec := b.EndVector(1)

	b.StartObject(8)
	b.PrependUint32Slot(0, 3, 0)
	b.PrependUOffsetTSlot(4, buffersVec, 0)
	b.PrependUOffsetTSlot(7, sigDefsVec, 0)
	root := b.EndObject()
	b.Finish(root)
	return b.FinishedBytes()
}

func TestUpcastFloat16RejectsModelsWithSignatureDefs(t *testing.T) {
	data := buildFloat16ModelWithSignatureDefs(t)

	_, _, err := UpcastFloat16(data)
	if err != ErrSignatureDefsUnsupported {
		t.Fatalf("err = %v, want ErrSignatureDefsUnsupported", err)
	}
}

func TestUpcastFloat16NoOpWithoutFloat16Tensors(t *testing.T) {
	b := flatbuffers.NewBuilder(64)
	b.StartObject(5)
	b.PrependUint32Slot(0, 3, 0)
	root := b.EndObject()
	b.Finish(root)
	data := b.FinishedBytes()

	out, changed, err := UpcastFloat16(data)
	if err != nil {
		t.Fatalf("UpcastFloat16: %v", err)
	}
	if changed {
		t.Fatalf("expected changed=false for a model with no FLOAT16 tensors")
	}
	if len(out) != len(data) {
		t.Fatalf("expected unmodified data returned as-is")
	}
}
