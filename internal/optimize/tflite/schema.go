// Package tflite is a minimal reader/writer for the subset of the TFLite
// FlatBuffer schema the model optimizer needs: enough of Model, SubGraph,
// Tensor, Buffer, OperatorCode, and Operator to find FLOAT16 tensors and
// rewrite them as FLOAT32 (ported from the fp16_to_fp32_upcast.py hook in
// original_source/src/qaihub_optimize). It is not a general-purpose TFLite
// library: description, metadata_buffer, and metadata are read and
// rebuilt byte-for-byte on upcast; signature_defs and tensor sparsity are
// read-only fields UpcastFloat16 has no rebuild support for, so it refuses
// to run against a model carrying them rather than silently drop them.
package tflite

import flatbuffers "github.com/google/flatbuffers/go"

// TensorType mirrors tflite's TensorType enum (schema.fbs); only the values
// the upcast path inspects are named.
type TensorType int8

const (
	Float32 TensorType = 0
	Float16 TensorType = 1
	Int32   TensorType = 2
	UInt8   TensorType = 3
	Int64   TensorType = 4
	Int8    TensorType = 9
)

// Model is the root table of a .tflite file.
type Model struct{ tab flatbuffers.Table }

func GetRootAsModel(buf []byte, offset flatbuffers.UOffsetT) *Model {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	m := &Model{}
	m.Init(buf, n+offset)
	return m
}

func (m *Model) Init(buf []byte, i flatbuffers.UOffsetT) {
	m.tab.Bytes = buf
	m.tab.Pos = i
}

func (m *Model) Version() uint32 {
	if o := flatbuffers.UOffsetT(m.tab.Offset(4)); o != 0 {
		return m.tab.GetUint32(o + m.tab.Pos)
	}
	return 0
}

func (m *Model) OperatorCodesLength() int {
	if o := flatbuffers.UOffsetT(m.tab.Offset(6)); o != 0 {
		return m.tab.VectorLen(o)
	}
	return 0
}

func (m *Model) OperatorCodes(j int) *OperatorCode {
	o := flatbuffers.UOffsetT(m.tab.Offset(6))
	if o == 0 {
		return nil
	}
	x := m.tab.Vector(o) + flatbuffers.UOffsetT(j)*4
	x = m.tab.Indirect(x)
	oc := &OperatorCode{}
	oc.Init(m.tab.Bytes, x)
	return oc
}

func (m *Model) SubgraphsLength() int {
	if o := flatbuffers.UOffsetT(m.tab.Offset(8)); o != 0 {
		return m.tab.VectorLen(o)
	}
	return 0
}

func (m *Model) Subgraphs(j int) *SubGraph {
	o := flatbuffers.UOffsetT(m.tab.Offset(8))
	if o == 0 {
		return nil
	}
	x := m.tab.Vector(o) + flatbuffers.UOffsetT(j)*4
	x = m.tab.Indirect(x)
	sg := &SubGraph{}
	sg.Init(m.tab.Bytes, x)
	return sg
}

func (m *Model) BuffersLength() int {
	if o := flatbuffers.UOffsetT(m.tab.Offset(12)); o != 0 {
		return m.tab.VectorLen(o)
	}
	return 0
}

func (m *Model) Buffers(j int) *Buffer {
	o := flatbuffers.UOffsetT(m.tab.Offset(12))
	if o == 0 {
		return nil
	}
	x := m.tab.Vector(o) + flatbuffers.UOffsetT(j)*4
	x = m.tab.Indirect(x)
	b := &Buffer{}
	b.Init(m.tab.Bytes, x)
	return b
}

// Description is the model's free-form description string, field 3
// (vtable offset 10) of the root table.
func (m *Model) Description() string {
	if o := flatbuffers.UOffsetT(m.tab.Offset(10)); o != 0 {
		return string(m.tab.ByteVector(o + m.tab.Pos))
	}
	return ""
}

// MetadataBufferLength returns the length of field 5 (vtable offset 14):
// buffer indices holding out-of-line metadata blobs.
func (m *Model) MetadataBufferLength() int {
	if o := flatbuffers.UOffsetT(m.tab.Offset(14)); o != 0 {
		return m.tab.VectorLen(o)
	}
	return 0
}

func (m *Model) MetadataBuffer(j int) int32 {
	o := flatbuffers.UOffsetT(m.tab.Offset(14))
	if o == 0 {
		return 0
	}
	a := m.tab.Vector(o)
	return m.tab.GetInt32(a + flatbuffers.UOffsetT(j)*4)
}

// MetadataLength returns the length of field 6 (vtable offset 16): named
// pointers into Buffers carrying structured metadata (e.g. min_runtime_version).
func (m *Model) MetadataLength() int {
	if o := flatbuffers.UOffsetT(m.tab.Offset(16)); o != 0 {
		return m.tab.VectorLen(o)
	}
	return 0
}

func (m *Model) Metadata(j int) *Metadata {
	o := flatbuffers.UOffsetT(m.tab.Offset(16))
	if o == 0 {
		return nil
	}
	x := m.tab.Vector(o) + flatbuffers.UOffsetT(j)*4
	x = m.tab.Indirect(x)
	md := &Metadata{}
	md.Init(m.tab.Bytes, x)
	return md
}

// SignatureDefsLength returns the length of field 7 (vtable offset 18):
// named entry points with their subgraph/tensor bindings. The upcast path
// has no rebuild support for this field (see UpcastFloat16); it refuses to
// run rather than silently drop it.
func (m *Model) SignatureDefsLength() int {
	if o := flatbuffers.UOffsetT(m.tab.Offset(18)); o != 0 {
		return m.tab.VectorLen(o)
	}
	return 0
}

// Metadata names one buffer (by index) as carrying a particular kind of
// model metadata.
type Metadata struct{ tab flatbuffers.Table }

func (md *Metadata) Init(buf []byte, i flatbuffers.UOffsetT) {
	md.tab.Bytes = buf
	md.tab.Pos = i
}

func (md *Metadata) Name() string {
	if o := flatbuffers.UOffsetT(md.tab.Offset(4)); o != 0 {
		return string(md.tab.ByteVector(o + md.tab.Pos))
	}
	return ""
}

func (md *Metadata) Buffer() uint32 {
	if o := flatbuffers.UOffsetT(md.tab.Offset(6)); o != 0 {
		return md.tab.GetUint32(o + md.tab.Pos)
	}
	return 0
}

// OperatorCode identifies one operator kind referenced by Operator.OpcodeIndex.
type OperatorCode struct{ tab flatbuffers.Table }

func (o *OperatorCode) Init(buf []byte, i flatbuffers.UOffsetT) {
	o.tab.Bytes = buf
	o.tab.Pos = i
}

func (o *OperatorCode) DeprecatedBuiltinCode() int8 {
	if off := flatbuffers.UOffsetT(o.tab.Offset(4)); off != 0 {
		return o.tab.GetInt8(off + o.tab.Pos)
	}
	return 0
}

func (o *OperatorCode) CustomCode() string {
	if off := flatbuffers.UOffsetT(o.tab.Offset(6)); off != 0 {
		return string(o.tab.ByteVector(off + o.tab.Pos))
	}
	return ""
}

func (o *OperatorCode) Version() int32 {
	if off := flatbuffers.UOffsetT(o.tab.Offset(8)); off != 0 {
		return o.tab.GetInt32(off + o.tab.Pos)
	}
	return 1
}

func (o *OperatorCode) BuiltinCode() int32 {
	if off := flatbuffers.UOffsetT(o.tab.Offset(10)); off != 0 {
		return o.tab.GetInt32(off + o.tab.Pos)
	}
	return 0
}

// SubGraph is one computation graph within a Model.
type SubGraph struct{ tab flatbuffers.Table }

func (s *SubGraph) Init(buf []byte, i flatbuffers.UOffsetT) {
	s.tab.Bytes = buf
	s.tab.Pos = i
}

func (s *SubGraph) TensorsLength() int {
	if o := flatbuffers.UOffsetT(s.tab.Offset(4)); o != 0 {
		return s.tab.VectorLen(o)
	}
	return 0
}

func (s *SubGraph) Tensors(j int) *Tensor {
	o := flatbuffers.UOffsetT(s.tab.Offset(4))
	if o == 0 {
		return nil
	}
	x := s.tab.Vector(o) + flatbuffers.UOffsetT(j)*4
	x = s.tab.Indirect(x)
	t := &Tensor{}
	t.Init(s.tab.Bytes, x)
	return t
}

func (s *SubGraph) InputsLength() int {
	if o := flatbuffers.UOffsetT(s.tab.Offset(6)); o != 0 {
		return s.tab.VectorLen(o)
	}
	return 0
}

func (s *SubGraph) Inputs(j int) int32 {
	o := flatbuffers.UOffsetT(s.tab.Offset(6))
	if o == 0 {
		return 0
	}
	a := s.tab.Vector(o)
	return s.tab.GetInt32(a + flatbuffers.UOffsetT(j)*4)
}

func (s *SubGraph) OutputsLength() int {
	if o := flatbuffers.UOffsetT(s.tab.Offset(8)); o != 0 {
		return s.tab.VectorLen(o)
	}
	return 0
}

func (s *SubGraph) Outputs(j int) int32 {
	o := flatbuffers.UOffsetT(s.tab.Offset(8))
	if o == 0 {
		return 0
	}
	a := s.tab.Vector(o)
	return s.tab.GetInt32(a + flatbuffers.UOffsetT(j)*4)
}

func (s *SubGraph) OperatorsLength() int {
	if o := flatbuffers.UOffsetT(s.tab.Offset(10)); o != 0 {
		return s.tab.VectorLen(o)
	}
	return 0
}

func (s *SubGraph) Operators(j int) *Operator {
	o := flatbuffers.UOffsetT(s.tab.Offset(10))
	if o == 0 {
		return nil
	}
	x := s.tab.Vector(o) + flatbuffers.UOffsetT(j)*4
	x = s.tab.Indirect(x)
	op := &Operator{}
	op.Init(s.tab.Bytes, x)
	return op
}

func (s *SubGraph) Name() string {
	if o := flatbuffers.UOffsetT(s.tab.Offset(12)); o != 0 {
		return string(s.tab.ByteVector(o + s.tab.Pos))
	}
	return ""
}

// Tensor describes one tensor slot in a SubGraph.
type Tensor struct{ tab flatbuffers.Table }

func (t *Tensor) Init(buf []byte, i flatbuffers.UOffsetT) {
	t.tab.Bytes = buf
	t.tab.Pos = i
}

func (t *Tensor) ShapeLength() int {
	if o := flatbuffers.UOffsetT(t.tab.Offset(4)); o != 0 {
		return t.tab.VectorLen(o)
	}
	return 0
}

func (t *Tensor) Shape(j int) int32 {
	o := flatbuffers.UOffsetT(t.tab.Offset(4))
	if o == 0 {
		return 0
	}
	a := t.tab.Vector(o)
	return t.tab.GetInt32(a + flatbuffers.UOffsetT(j)*4)
}

func (t *Tensor) Type() TensorType {
	if o := flatbuffers.UOffsetT(t.tab.Offset(6)); o != 0 {
		return TensorType(t.tab.GetInt8(o + t.tab.Pos))
	}
	return Float32
}

func (t *Tensor) Buffer() uint32 {
	if o := flatbuffers.UOffsetT(t.tab.Offset(8)); o != 0 {
		return t.tab.GetUint32(o + t.tab.Pos)
	}
	return 0
}

func (t *Tensor) Name() string {
	if o := flatbuffers.UOffsetT(t.tab.Offset(10)); o != 0 {
		return string(t.tab.ByteVector(o + t.tab.Pos))
	}
	return ""
}

func (t *Tensor) Quantization() *QuantizationParameters {
	o := flatbuffers.UOffsetT(t.tab.Offset(12))
	if o == 0 {
		return nil
	}
	x := t.tab.Indirect(o + t.tab.Pos)
	q := &QuantizationParameters{}
	q.Init(t.tab.Bytes, x)
	return q
}

// QuantizationParameters carries per-tensor scale/zero-point pairs.
type QuantizationParameters struct{ tab flatbuffers.Table }

func (q *QuantizationParameters) Init(buf []byte, i flatbuffers.UOffsetT) {
	q.tab.Bytes = buf
	q.tab.Pos = i
}

func (q *QuantizationParameters) ScaleLength() int {
	if o := flatbuffers.UOffsetT(q.tab.Offset(6)); o != 0 {
		return q.tab.VectorLen(o)
	}
	return 0
}

func (q *QuantizationParameters) Scale(j int) float32 {
	o := flatbuffers.UOffsetT(q.tab.Offset(6))
	if o == 0 {
		return 0
	}
	a := q.tab.Vector(o)
	return q.tab.GetFloat32(a + flatbuffers.UOffsetT(j)*4)
}

func (q *QuantizationParameters) ZeroPointLength() int {
	if o := flatbuffers.UOffsetT(q.tab.Offset(8)); o != 0 {
		return q.tab.VectorLen(o)
	}
	return 0
}

func (q *QuantizationParameters) ZeroPoint(j int) int64 {
	o := flatbuffers.UOffsetT(q.tab.Offset(8))
	if o == 0 {
		return 0
	}
	a := q.tab.Vector(o)
	return q.tab.GetInt64(a + flatbuffers.UOffsetT(j)*8)
}

// Buffer holds the raw bytes backing zero or more Tensors.
type Buffer struct{ tab flatbuffers.Table }

func (b *Buffer) Init(buf []byte, i flatbuffers.UOffsetT) {
	b.tab.Bytes = buf
	b.tab.Pos = i
}

func (b *Buffer) DataLength() int {
	if o := flatbuffers.UOffsetT(b.tab.Offset(4)); o != 0 {
		return b.tab.VectorLen(o)
	}
	return 0
}

func (b *Buffer) DataBytes() []byte {
	if o := flatbuffers.UOffsetT(b.tab.Offset(4)); o != 0 {
		return b.tab.ByteVector(o + b.tab.Pos)
	}
	return nil
}

// Operator is one graph node: an opcode index plus input/output tensor
// indices and opaque builtin/custom option bytes the upcast path copies
// through unexamined.
type Operator struct{ tab flatbuffers.Table }

func (op *Operator) Init(buf []byte, i flatbuffers.UOffsetT) {
	op.tab.Bytes = buf
	op.tab.Pos = i
}

func (op *Operator) OpcodeIndex() uint32 {
	if o := flatbuffers.UOffsetT(op.tab.Offset(4)); o != 0 {
		return op.tab.GetUint32(o + op.tab.Pos)
	}
	return 0
}

func (op *Operator) InputsLength() int {
	if o := flatbuffers.UOffsetT(op.tab.Offset(6)); o != 0 {
		return op.tab.VectorLen(o)
	}
	return 0
}

func (op *Operator) Inputs(j int) int32 {
	o := flatbuffers.UOffsetT(op.tab.Offset(6))
	if o == 0 {
		return 0
	}
	a := op.tab.Vector(o)
	return op.tab.GetInt32(a + flatbuffers.UOffsetT(j)*4)
}

func (op *Operator) OutputsLength() int {
	if o := flatbuffers.UOffsetT(op.tab.Offset(8)); o != 0 {
		return op.tab.VectorLen(o)
	}
	return 0
}

func (op *Operator) Outputs(j int) int32 {
	o := flatbuffers.UOffsetT(op.tab.Offset(8))
	if o == 0 {
		return 0
	}
	a := op.tab.Vector(o)
	return op.tab.GetInt32(a + flatbuffers.UOffsetT(j)*4)
}

func (op *Operator) BuiltinOptionsType() uint8 {
	if o := flatbuffers.UOffsetT(op.tab.Offset(10)); o != 0 {
		return op.tab.GetUint8(o + op.tab.Pos)
	}
	return 0
}

func (op *Operator) BuiltinOptionsBytes() []byte {
	if o := flatbuffers.UOffsetT(op.tab.Offset(12)); o != 0 {
		return op.tab.ByteVector(o + op.tab.Pos)
	}
	return nil
}

func (op *Operator) CustomOptionsBytes() []byte {
	if o := flatbuffers.UOffsetT(op.tab.Offset(14)); o != 0 {
		return op.tab.ByteVector(o + op.tab.Pos)
	}
	return nil
}
