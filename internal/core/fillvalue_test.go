package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFillValueMessage_V1Defined(t *testing.T) {
	data := []byte{
		1,          // version
		0,          // alloc time
		0,          // fill write time
		1,          // defined
		4, 0, 0, 0, // size = 4
		0xAA, 0xBB, 0xCC, 0xDD,
	}

	fv, err := ParseFillValueMessage(data)
	require.NoError(t, err)
	require.True(t, fv.Defined)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, fv.Value)
}

func TestParseFillValueMessage_V1Undefined(t *testing.T) {
	data := []byte{1, 0, 0, 0}

	fv, err := ParseFillValueMessage(data)
	require.NoError(t, err)
	require.False(t, fv.Defined)
	require.Empty(t, fv.Value)
}

func TestParseFillValueMessage_V3Defined(t *testing.T) {
	data := []byte{
		3,          // version
		0x20,       // flags: bit 5 set = defined
		4, 0, 0, 0, // size = 4
		0x01, 0x02, 0x03, 0x04,
	}

	fv, err := ParseFillValueMessage(data)
	require.NoError(t, err)
	require.True(t, fv.Defined)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, fv.Value)
}

func TestParseFillValueMessage_V3Undefined(t *testing.T) {
	data := []byte{3, 0x00}

	fv, err := ParseFillValueMessage(data)
	require.NoError(t, err)
	require.False(t, fv.Defined)
}

func TestParseFillValueMessage_UnsupportedVersion(t *testing.T) {
	_, err := ParseFillValueMessage([]byte{9, 0, 0, 0})
	require.Error(t, err)
}

func TestParseFillValueMessage_TooShort(t *testing.T) {
	_, err := ParseFillValueMessage([]byte{1, 0})
	require.Error(t, err)
}

func TestFillValueMessage_FillBuffer(t *testing.T) {
	fv := &FillValueMessage{Defined: true, Value: []byte{0xFF, 0xFF, 0xFF, 0xFF}}

	buf := make([]byte, 12)
	fv.FillBuffer(buf, 4)

	want := []byte{
		0xFF, 0xFF, 0xFF, 0xFF,
		0xFF, 0xFF, 0xFF, 0xFF,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	require.Equal(t, want, buf)
}

func TestFillValueMessage_FillBuffer_NilOrUndefinedLeavesZero(t *testing.T) {
	buf := make([]byte, 8)

	var nilFV *FillValueMessage
	nilFV.FillBuffer(buf, 4)
	require.Equal(t, make([]byte, 8), buf)

	undefined := &FillValueMessage{Defined: false}
	undefined.FillBuffer(buf, 4)
	require.Equal(t, make([]byte, 8), buf)
}
