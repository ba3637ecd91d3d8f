package vm

import (
	"encoding/binary"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// Binary record sizes of the external trace formats. A register record is a
// (pc, ap, fp) little-endian uint64 triple; a memory record is an
// (address, value) pair.
const (
	RegisterRecordSize = 24
	MemoryRecordSize   = 16
)

// RegisterState holds the three VM registers at one execution step.
type RegisterState struct {
	Pc uint64
	Ap uint64
	Fp uint64
}

// LoadRegisterTrace decodes an execution-ordered register trace from its
// fixed-record binary form. No semantic validation happens here; a length
// that is not a whole number of records is rejected outright.
func LoadRegisterTrace(data []byte) ([]RegisterState, error) {
	if len(data)%RegisterRecordSize != 0 {
		return nil, fault.New(fault.CodeIO,
			"register trace length %d is not a multiple of the %d-byte record size", len(data), RegisterRecordSize)
	}
	states := make([]RegisterState, 0, len(data)/RegisterRecordSize)
	for off := 0; off < len(data); off += RegisterRecordSize {
		rec := data[off : off+RegisterRecordSize]
		states = append(states, RegisterState{
			Pc: binary.LittleEndian.Uint64(rec[0:8]),
			Ap: binary.LittleEndian.Uint64(rec[8:16]),
			Fp: binary.LittleEndian.Uint64(rec[16:24]),
		})
	}
	return states, nil
}

// LoadMemoryLog decodes an execution-ordered memory access log. Values must
// be canonical field elements; addresses are plain machine integers.
func LoadMemoryLog(data []byte) ([]MemoryCell, error) {
	if len(data)%MemoryRecordSize != 0 {
		return nil, fault.New(fault.CodeIO,
			"memory log length %d is not a multiple of the %d-byte record size", len(data), MemoryRecordSize)
	}
	cells := make([]MemoryCell, 0, len(data)/MemoryRecordSize)
	for off := 0; off < len(data); off += MemoryRecordSize {
		rec := data[off : off+MemoryRecordSize]
		value, err := felt.FromLE(rec[8:16])
		if err != nil {
			return nil, fault.Wrap(fault.CodeIO, err, "memory log record at offset %d", off)
		}
		cells = append(cells, MemoryCell{
			Address: binary.LittleEndian.Uint64(rec[0:8]),
			Value:   value,
		})
	}
	return cells, nil
}

// EncodeRegisterTrace is the inverse of LoadRegisterTrace.
func EncodeRegisterTrace(states []RegisterState) []byte {
	buf := make([]byte, 0, len(states)*RegisterRecordSize)
	for _, s := range states {
		buf = binary.LittleEndian.AppendUint64(buf, s.Pc)
		buf = binary.LittleEndian.AppendUint64(buf, s.Ap)
		buf = binary.LittleEndian.AppendUint64(buf, s.Fp)
	}
	return buf
}

// EncodeMemoryLog is the inverse of LoadMemoryLog.
func EncodeMemoryLog(cells []MemoryCell) []byte {
	buf := make([]byte, 0, len(cells)*MemoryRecordSize)
	for _, c := range cells {
		buf = binary.LittleEndian.AppendUint64(buf, c.Address)
		buf = felt.AppendLE(buf, c.Value)
	}
	return buf
}
