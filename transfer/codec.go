package transfer

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/wippyai/isolates/errors"
)

// Binary layout: one tag byte per value, then a kind-specific payload.
// Integers are zigzag varints, floats are fixed 8 bytes little-endian,
// strings and byte blobs are uvarint length-prefixed, lists are a uvarint
// count followed by elements, maps are a uvarint count followed by sorted
// key/value pairs.

// Encode serializes v into a compact binary form.
func Encode(v Value) []byte {
	return appendValue(nil, v)
}

func appendValue(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.kind))
	switch v.kind {
	case KindUndefined, KindNull:
		return dst
	case KindBool:
		if v.b {
			return append(dst, 1)
		}
		return append(dst, 0)
	case KindInt:
		return binary.AppendVarint(dst, int64(v.num))
	case KindFloat:
		return binary.LittleEndian.AppendUint64(dst, v.num)
	case KindString:
		dst = binary.AppendUvarint(dst, uint64(len(v.str)))
		return append(dst, v.str...)
	case KindBytes:
		dst = binary.AppendUvarint(dst, uint64(len(v.raw)))
		return append(dst, v.raw...)
	case KindList:
		dst = binary.AppendUvarint(dst, uint64(len(v.list)))
		for _, e := range v.list {
			dst = appendValue(dst, e)
		}
		return dst
	case KindMap:
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = binary.AppendUvarint(dst, uint64(len(keys)))
		for _, k := range keys {
			dst = binary.AppendUvarint(dst, uint64(len(k)))
			dst = append(dst, k...)
			dst = appendValue(dst, v.dict[k])
		}
		return dst
	default:
		return dst
	}
}

// Decode deserializes a Value previously produced by Encode. Trailing bytes
// are an error.
func Decode(data []byte) (Value, error) {
	v, rest, err := decodeValue(data)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, errors.InvalidData(errors.PhaseDeliver, "trailing bytes after encoded value")
	}
	return v, nil
}

func decodeValue(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "truncated value")
	}
	kind := Kind(data[0])
	data = data[1:]

	switch kind {
	case KindUndefined:
		return Undefined(), data, nil
	case KindNull:
		return Null(), data, nil
	case KindBool:
		if len(data) < 1 {
			return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "truncated bool")
		}
		return Bool(data[0] != 0), data[1:], nil
	case KindInt:
		n, sz := binary.Varint(data)
		if sz <= 0 {
			return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "truncated int")
		}
		return Int(n), data[sz:], nil
	case KindFloat:
		if len(data) < 8 {
			return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "truncated float")
		}
		bits := binary.LittleEndian.Uint64(data)
		return Float(math.Float64frombits(bits)), data[8:], nil
	case KindString:
		s, rest, err := decodeBlob(data)
		if err != nil {
			return Value{}, nil, err
		}
		return String(string(s)), rest, nil
	case KindBytes:
		b, rest, err := decodeBlob(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Bytes(b), rest, nil
	case KindList:
		n, sz := binary.Uvarint(data)
		if sz <= 0 {
			return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "truncated list header")
		}
		data = data[sz:]
		if n > uint64(len(data)) {
			return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "list length exceeds input")
		}
		elems := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var (
				e   Value
				err error
			)
			e, data, err = decodeValue(data)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		return Value{kind: KindList, list: elems}, data, nil
	case KindMap:
		n, sz := binary.Uvarint(data)
		if sz <= 0 {
			return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "truncated map header")
		}
		data = data[sz:]
		if n > uint64(len(data)) {
			return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "map length exceeds input")
		}
		m := make(map[string]Value, n)
		for i := uint64(0); i < n; i++ {
			key, rest, err := decodeBlob(data)
			if err != nil {
				return Value{}, nil, err
			}
			data = rest
			var e Value
			e, data, err = decodeValue(data)
			if err != nil {
				return Value{}, nil, err
			}
			m[string(key)] = e
		}
		return Value{kind: KindMap, dict: m}, data, nil
	default:
		return Value{}, nil, errors.InvalidData(errors.PhaseDeliver, "unknown value tag")
	}
}

func decodeBlob(data []byte) ([]byte, []byte, error) {
	n, sz := binary.Uvarint(data)
	if sz <= 0 {
		return nil, nil, errors.InvalidData(errors.PhaseDeliver, "truncated length prefix")
	}
	data = data[sz:]
	if n > uint64(len(data)) {
		return nil, nil, errors.InvalidData(errors.PhaseDeliver, "length prefix exceeds input")
	}
	return data[:n], data[n:], nil
}
