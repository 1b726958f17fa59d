// Package wasmtest synthesizes tiny WebAssembly modules used as guest
// programs in tests: setting a scope global from the start section, reading
// one back from an exported function, trapping, or demanding more memory
// than a budget allows.
package wasmtest

import "encoding/binary"

const (
	secType   = 1
	secImport = 2
	secFunc   = 3
	secMemory = 5
	secExport = 7
	secStart  = 8
	secCode   = 10
	secData   = 11

	valI32 = 0x7f
	valI64 = 0x7e

	opUnreachable = 0x00
	opEnd         = 0x0b
	opCall        = 0x10
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI64Add      = 0x7c
)

func uleb(v uint64) []byte {
	return binary.AppendUvarint(nil, v)
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, uleb(uint64(len(payload))), payload)
}

// vec prefixes the concatenated items with their count.
func vec(items ...[]byte) []byte {
	return cat(append([][]byte{uleb(uint64(len(items)))}, items...)...)
}

func name(s string) []byte {
	return cat(uleb(uint64(len(s))), []byte(s))
}

func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, uleb(uint64(len(params))), params, uleb(uint64(len(results))), results)
}

func importFunc(mod, field string, typeIdx uint64) []byte {
	return cat(name(mod), name(field), []byte{0x00}, uleb(typeIdx))
}

func memory(minPages uint32) []byte {
	return section(secMemory, vec(cat([]byte{0x00}, uleb(uint64(minPages)))))
}

func exportFunc(field string, funcIdx uint64) []byte {
	return section(secExport, vec(cat(name(field), []byte{0x00}, uleb(funcIdx))))
}

// activeData places bytes at the given offset of memory 0.
func activeData(offset uint32, data []byte) []byte {
	expr := cat([]byte{opI32Const}, sleb(int64(offset)), []byte{opEnd})
	return section(secData, vec(cat([]byte{0x00}, expr, uleb(uint64(len(data))), data)))
}

func body(instrs []byte) []byte {
	// no locals
	b := cat(uleb(0), instrs, []byte{opEnd})
	return cat(uleb(uint64(len(b))), b)
}

func i32Const(v int32) []byte { return cat([]byte{opI32Const}, sleb(int64(v))) }
func i64Const(v int64) []byte { return cat([]byte{opI64Const}, sleb(v)) }
func call(idx uint64) []byte  { return cat([]byte{opCall}, uleb(idx)) }

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

var (
	sigGet    = funcType([]byte{valI32, valI32}, []byte{valI64})
	sigSet    = funcType([]byte{valI32, valI32, valI64}, nil)
	sigVoid   = funcType(nil, nil)
	sigRetI64 = funcType(nil, []byte{valI64})
)

// SetGlobalOnStart builds a module whose start section sets the named scope
// global to val through env.global_set.
func SetGlobalOnStart(global string, val int64) []byte {
	return cat(
		header,
		section(secType, vec(sigSet, sigVoid)),
		section(secImport, vec(importFunc("env", "global_set", 0))),
		section(secFunc, vec(uleb(1))),
		memory(1),
		section(secStart, uleb(1)),
		section(secCode, vec(body(cat(
			i32Const(0),
			i32Const(int32(len(global))),
			i64Const(val),
			call(0),
		)))),
		activeData(0, []byte(global)),
	)
}

// AddToGlobalOnStart builds a module whose start section reads global src,
// adds delta, and stores the result into global dst.
func AddToGlobalOnStart(src, dst string, delta int64) []byte {
	data := []byte(src + dst)
	return cat(
		header,
		section(secType, vec(sigGet, sigSet, sigVoid)),
		section(secImport, vec(
			importFunc("env", "global_get", 0),
			importFunc("env", "global_set", 1),
		)),
		section(secFunc, vec(uleb(2))),
		memory(1),
		section(secStart, uleb(2)),
		section(secCode, vec(body(cat(
			i32Const(int32(len(src))), // dst ptr
			i32Const(int32(len(dst))), // dst len
			i32Const(0),               // src ptr
			i32Const(int32(len(src))), // src len
			call(0),
			i64Const(delta),
			[]byte{opI64Add},
			call(1),
		)))),
		activeData(0, data),
	)
}

// ReadGlobal builds a module exporting run() -> i64 returning the named
// scope global.
func ReadGlobal(global string) []byte {
	return cat(
		header,
		section(secType, vec(sigGet, sigRetI64)),
		section(secImport, vec(importFunc("env", "global_get", 0))),
		section(secFunc, vec(uleb(1))),
		memory(1),
		exportFunc("run", 1),
		section(secCode, vec(body(cat(
			i32Const(0),
			i32Const(int32(len(global))),
			call(0),
		)))),
		activeData(0, []byte(global)),
	)
}

// ReturnConst builds a module exporting run() -> i64 returning val.
func ReturnConst(val int64) []byte {
	return cat(
		header,
		section(secType, vec(sigRetI64)),
		section(secFunc, vec(uleb(0))),
		exportFunc("run", 0),
		section(secCode, vec(body(i64Const(val)))),
	)
}

// TrapOnRun builds a module exporting run() that hits an unreachable
// instruction.
func TrapOnRun() []byte {
	return cat(
		header,
		section(secType, vec(sigVoid)),
		section(secFunc, vec(uleb(0))),
		exportFunc("run", 0),
		section(secCode, vec(body([]byte{opUnreachable}))),
	)
}

// MemoryHog builds a module that demands minPages of linear memory at
// instantiation. The data segment at the end of that range makes a failed
// allocation observable as an instantiation error.
func MemoryHog(minPages uint32) []byte {
	return cat(
		header,
		memory(minPages),
		activeData(minPages*64*1024-1, []byte{1}),
	)
}

// Invalid returns bytes that are not a WebAssembly module.
func Invalid() []byte {
	return []byte("definitely not wasm")
}
