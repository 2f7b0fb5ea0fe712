package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/hdf5/internal/utils"
)

func buildBTreeV2Header(t *testing.T, sb *Superblock, rootAddr uint64, numRecords uint16, totalRecords uint64) []byte {
	t.Helper()

	offsetSize := int(sb.OffsetSize)
	bufSize := 16 + offsetSize + 2 + 8 + 4
	buf := make([]byte, bufSize)

	copy(buf[0:4], "BTHD")
	buf[4] = 0    // version
	buf[5] = 8    // type: attribute name records
	offset := 6
	sb.Endianness.PutUint32(buf[offset:offset+4], 512) // node size
	offset += 4
	sb.Endianness.PutUint16(buf[offset:offset+2], 11) // record size
	offset += 2
	sb.Endianness.PutUint16(buf[offset:offset+2], 0) // depth
	offset += 2
	offset += 2 // split/merge percent

	addrBuf := make([]byte, offsetSize)
	sb.Endianness.PutUint64(addrBuf, rootAddr)
	copy(buf[offset:offset+offsetSize], addrBuf[:offsetSize])
	offset += offsetSize

	sb.Endianness.PutUint16(buf[offset:offset+2], numRecords)
	offset += 2
	sb.Endianness.PutUint64(buf[offset:offset+8], totalRecords)
	offset += 8

	checksum := crc32.ChecksumIEEE(buf[:offset])
	binary.LittleEndian.PutUint32(buf[offset:], checksum)

	return buf
}

func TestReadBTreeV2Header_Valid(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, Endianness: binary.LittleEndian}
	buf := buildBTreeV2Header(t, sb, 0x200, 3, 3)

	h, err := ReadBTreeV2Header(bytes.NewReader(buf), 0, sb)
	require.NoError(t, err)
	require.Equal(t, uint8(8), h.Type)
	require.Equal(t, uint64(0x200), h.RootNodeAddr)
	require.Equal(t, uint16(3), h.NumRecordsRoot)
	require.Equal(t, uint64(3), h.TotalRecords)
}

func TestReadBTreeV2Header_BadSignature(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, Endianness: binary.LittleEndian}
	buf := buildBTreeV2Header(t, sb, 0x200, 1, 1)
	copy(buf[0:4], "XXXX")

	_, err := ReadBTreeV2Header(bytes.NewReader(buf), 0, sb)
	require.Error(t, err)
}

func TestReadBTreeV2Header_ChecksumMismatch(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, Endianness: binary.LittleEndian}
	buf := buildBTreeV2Header(t, sb, 0x200, 1, 1)
	buf[6] ^= 0xFF // flip a byte inside the header, after the signature

	_, err := ReadBTreeV2Header(bytes.NewReader(buf), 0, sb)
	require.Error(t, err)
	require.True(t, errors.Is(err, utils.ErrChecksumMismatch))
}

func buildAttributeNameLeaf(t *testing.T, sb *Superblock, records []AttributeNameRecord) []byte {
	t.Helper()

	const recordSize = 4 + 7
	bufSize := 6 + len(records)*recordSize + 4
	buf := make([]byte, bufSize)

	copy(buf[0:4], "BTLF")
	buf[4] = 0 // version
	buf[5] = 8 // type

	offset := 6
	for _, rec := range records {
		sb.Endianness.PutUint32(buf[offset:offset+4], rec.NameHash)
		offset += 4
		copy(buf[offset:offset+7], rec.HeapID[:])
		offset += 7
	}

	checksum := crc32.ChecksumIEEE(buf[:offset])
	binary.LittleEndian.PutUint32(buf[offset:], checksum)

	return buf
}

func TestReadAttributeNameRecords_Valid(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, Endianness: binary.LittleEndian}
	want := []AttributeNameRecord{
		{NameHash: 0x1111, HeapID: [7]byte{1, 2, 3, 4, 5, 6, 7}},
		{NameHash: 0x2222, HeapID: [7]byte{8, 9, 10, 11, 12, 13, 14}},
	}
	buf := buildAttributeNameLeaf(t, sb, want)

	got, err := ReadAttributeNameRecords(bytes.NewReader(buf), 0, uint16(len(want)), sb)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadAttributeNameRecords_ChecksumMismatch(t *testing.T) {
	sb := &Superblock{OffsetSize: 8, Endianness: binary.LittleEndian}
	buf := buildAttributeNameLeaf(t, sb, []AttributeNameRecord{
		{NameHash: 0x1, HeapID: [7]byte{1, 1, 1, 1, 1, 1, 1}},
	})
	buf[6] ^= 0xFF

	_, err := ReadAttributeNameRecords(bytes.NewReader(buf), 0, 1, sb)
	require.Error(t, err)
	require.True(t, errors.Is(err, utils.ErrChecksumMismatch))
}
