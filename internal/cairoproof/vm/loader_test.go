package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

func TestRegisterTraceRoundTrip(t *testing.T) {
	states := []RegisterState{
		{Pc: 1, Ap: 9, Fp: 9},
		{Pc: 3, Ap: 10, Fp: 9},
		{Pc: 5, Ap: 10, Fp: 9},
	}
	data := EncodeRegisterTrace(states)
	require.Len(t, data, 3*RegisterRecordSize)
	got, err := LoadRegisterTrace(data)
	require.NoError(t, err)
	require.Equal(t, states, got)
}

func TestRegisterTraceRejectsTruncation(t *testing.T) {
	data := EncodeRegisterTrace([]RegisterState{{Pc: 1, Ap: 2, Fp: 3}})
	_, err := LoadRegisterTrace(data[:len(data)-1])
	require.Error(t, err)
	require.Equal(t, fault.CodeIO, fault.CodeOf(err))
}

func TestMemoryLogRoundTrip(t *testing.T) {
	cells := []MemoryCell{
		{Address: 1, Value: felt.New(haltWord)},
		{Address: 2, Value: felt.Zero()},
		{Address: 9, Value: felt.New(felt.Modulus - 1)},
	}
	data := EncodeMemoryLog(cells)
	require.Len(t, data, 3*MemoryRecordSize)
	got, err := LoadMemoryLog(data)
	require.NoError(t, err)
	require.Equal(t, cells, got)
}

func TestMemoryLogRejectsNonCanonicalValue(t *testing.T) {
	data := make([]byte, MemoryRecordSize)
	for i := 8; i < 16; i++ {
		data[i] = 0xff // value = 2^64-1, above the modulus
	}
	_, err := LoadMemoryLog(data)
	require.Error(t, err)
	require.Equal(t, fault.CodeIO, fault.CodeOf(err))
}

func TestMemoryLogRejectsTruncation(t *testing.T) {
	_, err := LoadMemoryLog(make([]byte, MemoryRecordSize+5))
	require.Error(t, err)
	require.Equal(t, fault.CodeIO, fault.CodeOf(err))
}

func TestEmptyInputs(t *testing.T) {
	states, err := LoadRegisterTrace(nil)
	require.NoError(t, err)
	require.Empty(t, states)

	cells, err := LoadMemoryLog(nil)
	require.NoError(t, err)
	require.Empty(t, cells)
}
