package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sidecar wire format, little-endian:
//
//	8 bytes numBits, 8 bytes numHashes, 8 bytes count, then the bit array
//	as packed uint64 words.

const headerSize = 24

// Serialize encodes the filter for the export sidecar.
func (f *Filter) Serialize() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()

	buf := make([]byte, headerSize+len(f.bits)*8)
	binary.LittleEndian.PutUint64(buf[0:8], f.numBits)
	binary.LittleEndian.PutUint64(buf[8:16], f.numHashes)
	binary.LittleEndian.PutUint64(buf[16:24], f.count)
	for i, word := range f.bits {
		offset := headerSize + i*8
		binary.LittleEndian.PutUint64(buf[offset:offset+8], word)
	}
	return buf
}

// Deserialize reconstructs a filter from sidecar bytes.
func Deserialize(data []byte) (*Filter, error) {
	if len(data) < headerSize {
		return nil, errors.New("bloom: serialized data too short")
	}

	numBits := binary.LittleEndian.Uint64(data[0:8])
	numHashes := binary.LittleEndian.Uint64(data[8:16])
	count := binary.LittleEndian.Uint64(data[16:24])
	if numBits == 0 || numHashes == 0 {
		return nil, errors.New("bloom: invalid filter parameters")
	}

	numWords := (numBits + 63) / 64
	expectedSize := headerSize + int(numWords)*8
	if len(data) < expectedSize {
		return nil, fmt.Errorf("bloom: expected %d bytes, got %d", expectedSize, len(data))
	}

	bits := make([]uint64, numWords)
	for i := range bits {
		offset := headerSize + i*8
		bits[i] = binary.LittleEndian.Uint64(data[offset : offset+8])
	}

	return &Filter{
		bits:      bits,
		numBits:   numBits,
		numHashes: numHashes,
		count:     count,
	}, nil
}
