package tflite

import (
	"encoding/binary"
	"errors"
	"math"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/x448/float16"
)

// ErrSignatureDefsUnsupported is returned when a model carries
// signature_defs; UpcastFloat16 has no rebuild support for that field and
// refuses to run rather than silently drop it from the rewritten model.
var ErrSignatureDefsUnsupported = errors.New("tflite: model has signature_defs, which UpcastFloat16 cannot preserve on rewrite")

// UpcastFloat16 scans data for FLOAT16 tensors and, if any are found,
// returns a rewritten model with every FLOAT16 tensor (and its backing
// buffer) converted to FLOAT32. changed is false and data is returned
// unmodified when the model has no FLOAT16 tensors — mirroring
// hook_fp16_to_fp32's "no-op copy" behavior in the original Python tool.
func UpcastFloat16(data []byte) (out []byte, changed bool, err error) {
	model := GetRootAsModel(data, 0)

	if model.SignatureDefsLength() > 0 {
		return nil, false, ErrSignatureDefsUnsupported
	}

	affectedBuffers := make(map[int]bool)
	for sgIdx := 0; sgIdx < model.SubgraphsLength(); sgIdx++ {
		sg := model.Subgraphs(sgIdx)
		for tIdx := 0; tIdx < sg.TensorsLength(); tIdx++ {
			// Tensor field 6 (vtable offset 16) is sparsity, which buildTensor
			// cannot rebuild.
			if sg.Tensors(tIdx).tab.Offset(16) != 0 {
				return nil, false, errors.New("tflite: tensor has sparsity parameters, which UpcastFloat16 cannot preserve on rewrite")
			}
			if sg.Tensors(tIdx).Type() == Float16 {
				affectedBuffers[int(sg.Tensors(tIdx).Buffer())] = true
			}
		}
	}
	if len(affectedBuffers) == 0 {
		return data, false, nil
	}

	b := flatbuffers.NewBuilder(2 * len(data))

	bufferOffsets := make([]flatbuffers.UOffsetT, model.BuffersLength())
	for i := 0; i < model.BuffersLength(); i++ {
		buf := model.Buffers(i)
		raw := buf.DataBytes()
		if affectedBuffers[i] && len(raw) > 0 {
			raw = upcastFloat16Bytes(raw)
		}
		var dataVec flatbuffers.UOffsetT
		if len(raw) > 0 {
			dataVec = b.CreateByteVector(raw)
		}
		b.StartObject(3)
		if dataVec != 0 {
			b.PrependUOffsetTSlot(0, dataVec, 0)
		}
		bufferOffsets[i] = b.EndObject()
	}

	opcodeOffsets := make([]flatbuffers.UOffsetT, model.OperatorCodesLength())
	for i := 0; i < model.OperatorCodesLength(); i++ {
		oc := model.OperatorCodes(i)
		var customOff flatbuffers.UOffsetT
		if oc.CustomCode() != "" {
			customOff = b.CreateString(oc.CustomCode())
		}
		b.StartObject(4)
		b.PrependInt8Slot(0, oc.DeprecatedBuiltinCode(), 0)
		if customOff != 0 {
			b.PrependUOffsetTSlot(1, customOff, 0)
		}
		b.PrependInt32Slot(2, oc.Version(), 1)
		b.PrependInt32Slot(3, oc.BuiltinCode(), 0)
		opcodeOffsets[i] = b.EndObject()
	}

	subgraphOffsets := make([]flatbuffers.UOffsetT, model.SubgraphsLength())
	for sgIdx := 0; sgIdx < model.SubgraphsLength(); sgIdx++ {
		sg := model.Subgraphs(sgIdx)

		tensorOffsets := make([]flatbuffers.UOffsetT, sg.TensorsLength())
		for tIdx := 0; tIdx < sg.TensorsLength(); tIdx++ {
			t := sg.Tensors(tIdx)
			tensorOffsets[tIdx] = buildTensor(b, t)
		}
		tensorsVec := buildOffsetVector(b, tensorOffsets)

		inputsVec := buildInt32Vector(b, readInts(sg.InputsLength(), sg.Inputs))
		outputsVec := buildInt32Vector(b, readInts(sg.OutputsLength(), sg.Outputs))

		opOffsets := make([]flatbuffers.UOffsetT, sg.OperatorsLength())
		for oi := 0; oi < sg.OperatorsLength(); oi++ {
			opOffsets[oi] = buildOperator(b, sg.Operators(oi))
		}
		opsVec := buildOffsetVector(b, opOffsets)

		var nameOff flatbuffers.UOffsetT
		if sg.Name() != "" {
			nameOff = b.CreateString(sg.Name())
		}

		b.StartObject(5)
		if tensorsVec != 0 {
			b.PrependUOffsetTSlot(0, tensorsVec, 0)
		}
		if inputsVec != 0 {
			b.PrependUOffsetTSlot(1, inputsVec, 0)
		}
		if outputsVec != 0 {
			b.PrependUOffsetTSlot(2, outputsVec, 0)
		}
		if opsVec != 0 {
			b.PrependUOffsetTSlot(3, opsVec, 0)
		}
		if nameOff != 0 {
			b.PrependUOffsetTSlot(4, nameOff, 0)
		}
		subgraphOffsets[sgIdx] = b.EndObject()
	}

	opcodesVec := buildOffsetVector(b, opcodeOffsets)
	subgraphsVec := buildOffsetVector(b, subgraphOffsets)
	buffersVec := buildOffsetVector(b, bufferOffsets)

	var descOff flatbuffers.UOffsetT
	if model.Description() != "" {
		descOff = b.CreateString(model.Description())
	}
	metadataBufferVec := buildInt32Vector(b, readInts(model.MetadataBufferLength(), model.MetadataBuffer))
	metadataOffsets := make([]flatbuffers.UOffsetT, model.MetadataLength())
	for i := range metadataOffsets {
		metadataOffsets[i] = buildMetadata(b, model.Metadata(i))
	}
	metadataVec := buildOffsetVector(b, metadataOffsets)

	b.StartObject(8)
	b.PrependUint32Slot(0, model.Version(), 0)
	if opcodesVec != 0 {
		b.PrependUOffsetTSlot(1, opcodesVec, 0)
	}
	if subgraphsVec != 0 {
		b.PrependUOffsetTSlot(2, subgraphsVec, 0)
	}
	if descOff != 0 {
		b.PrependUOffsetTSlot(3, descOff, 0)
	}
	if buffersVec != 0 {
		b.PrependUOffsetTSlot(4, buffersVec, 0)
	}
	if metadataBufferVec != 0 {
		b.PrependUOffsetTSlot(5, metadataBufferVec, 0)
	}
	if metadataVec != 0 {
		b.PrependUOffsetTSlot(6, metadataVec, 0)
	}
	root := b.EndObject()

	b.Finish(root)
	return b.FinishedBytes(), true, nil
}

func buildTensor(b *flatbuffers.Builder, t *Tensor) flatbuffers.UOffsetT {
	shapeVec := buildInt32Vector(b, readInts(t.ShapeLength(), t.Shape))

	var nameOff flatbuffers.UOffsetT
	if t.Name() != "" {
		nameOff = b.CreateString(t.Name())
	}

	var quantOff flatbuffers.UOffsetT
	if q := t.Quantization(); q != nil && (q.ScaleLength() > 0 || q.ZeroPointLength() > 0) {
		quantOff = buildQuantization(b, q)
	}

	newType := t.Type()
	if newType == Float16 {
		newType = Float32
	}

	b.StartObject(5)
	if shapeVec != 0 {
		b.PrependUOffsetTSlot(0, shapeVec, 0)
	}
	b.PrependInt8Slot(1, int8(newType), int8(Float32))
	b.PrependUint32Slot(2, t.Buffer(), 0)
	if nameOff != 0 {
		b.PrependUOffsetTSlot(3, nameOff, 0)
	}
	if quantOff != 0 {
		b.PrependUOffsetTSlot(4, quantOff, 0)
	}
	return b.EndObject()
}

func buildQuantization(b *flatbuffers.Builder, q *QuantizationParameters) flatbuffers.UOffsetT {
	var scaleVec, zpVec flatbuffers.UOffsetT
	if n := q.ScaleLength(); n > 0 {
		b.StartVector(4, n, 4)
		for i := n - 1; i >= 0; i-- {
			b.PrependFloat32(q.Scale(i))
		}
		scaleVec = b.EndVector(n)
	}
	if n := q.ZeroPointLength(); n > 0 {
		b.StartVector(8, n, 8)
		for i := n - 1; i >= 0; i-- {
			b.PrependInt64(q.ZeroPoint(i))
		}
		zpVec = b.EndVector(n)
	}
	b.StartObject(2)
	if scaleVec != 0 {
		b.PrependUOffsetTSlot(0, scaleVec, 0)
	}
	if zpVec != 0 {
		b.PrependUOffsetTSlot(1, zpVec, 0)
	}
	return b.EndObject()
}

func buildOperator(b *flatbuffers.Builder, op *Operator) flatbuffers.UOffsetT {
	inputsVec := buildInt32Vector(b, readInts(op.InputsLength(), op.Inputs))
	outputsVec := buildInt32Vector(b, readInts(op.OutputsLength(), op.Outputs))

	var builtinOff flatbuffers.UOffsetT
	if raw := op.BuiltinOptionsBytes(); len(raw) > 0 {
		builtinOff = b.CreateByteVector(raw)
	}
	var customOff flatbuffers.UOffsetT
	if raw := op.CustomOptionsBytes(); len(raw) > 0 {
		customOff = b.CreateByteVector(raw)
	}

	b.StartObject(6)
	b.PrependUint32Slot(0, op.OpcodeIndex(), 0)
	if inputsVec != 0 {
		b.PrependUOffsetTSlot(1, inputsVec, 0)
	}
	if outputsVec != 0 {
		b.PrependUOffsetTSlot(2, outputsVec, 0)
	}
	b.PrependUint8Slot(3, op.BuiltinOptionsType(), 0)
	if builtinOff != 0 {
		b.PrependUOffsetTSlot(4, builtinOff, 0)
	}
	if customOff != 0 {
		b.PrependUOffsetTSlot(5, customOff, 0)
	}
	return b.EndObject()
}

func buildMetadata(b *flatbuffers.Builder, md *Metadata) flatbuffers.UOffsetT {
	var nameOff flatbuffers.UOffsetT
	if md.Name() != "" {
		nameOff = b.CreateString(md.Name())
	}
	b.StartObject(2)
	if nameOff != 0 {
		b.PrependUOffsetTSlot(0, nameOff, 0)
	}
	b.PrependUint32Slot(1, md.Buffer(), 0)
	return b.EndObject()
}

func readInts(n int, get func(int) int32) []int32 {
	if n == 0 {
		return nil
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		out[i] = get(i)
	}
	return out
}

func buildInt32Vector(b *flatbuffers.Builder, vals []int32) flatbuffers.UOffsetT {
	if len(vals) == 0 {
		return 0
	}
	b.StartVector(4, len(vals), 4)
	for i := len(vals) - 1; i >= 0; i-- {
		b.PrependInt32(vals[i])
	}
	return b.EndVector(len(vals))
}

func buildOffsetVector(b *flatbuffers.Builder, offs []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	if len(offs) == 0 {
		return 0
	}
	b.StartVector(4, len(offs), 4)
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}
	return b.EndVector(len(offs))
}

// upcastFloat16Bytes reinterprets raw as a little-endian FLOAT16 array and
// returns the equivalent little-endian FLOAT32 bytes.
func upcastFloat16Bytes(raw []byte) []byte {
	n := len(raw) / 2
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
		f32 := float16.Frombits(bits).Float32()
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(f32))
	}
	return out
}
