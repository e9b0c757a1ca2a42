package replay

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/blowfish"

	"github.com/wowsvault/replay-api/internal/models"
)

// replayMagic is the fixed magic number at offset 0 of every .wowsreplay file.
const replayMagic = 0x11343212

// blowfishKey is the fixed packet-stream key derived from the game client.
// It has been stable across every client version this service supports.
var blowfishKey = []byte{
	0x29, 0xB7, 0xC9, 0x09, 0x38, 0x3F, 0x84, 0x88,
	0xFA, 0x98, 0xEC, 0x4E, 0x13, 0x19, 0x79, 0xFB,
}

// container is the parsed outer layout of a replay file: the JSON metadata
// block plus the decrypted, decompressed packet stream.
type container struct {
	Meta   models.ReplayMeta
	Stream []byte
}

// readMetaBlock parses the fixed header and the JSON metadata block.
//
// Layout, all integers little-endian:
//
//	magic:u32 | blocks:u32 | jsonSize:u32 | json | encrypted zlib stream
func readMetaBlock(data []byte) (models.ReplayMeta, error) {
	var meta models.ReplayMeta

	if len(data) < 12 {
		return meta, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != replayMagic {
		return meta, fmt.Errorf("%w: magic 0x%08x", ErrMalformedHeader, magic)
	}
	blocks := binary.LittleEndian.Uint32(data[4:8])
	if blocks == 0 {
		return meta, fmt.Errorf("%w: zero block count", ErrMalformedHeader)
	}

	jsonSize := binary.LittleEndian.Uint32(data[8:12])
	if uint64(12+jsonSize) > uint64(len(data)) {
		return meta, fmt.Errorf("%w: json block of %d bytes exceeds file", ErrMalformedHeader, jsonSize)
	}
	jsonBlock := data[12 : 12+jsonSize]

	if err := json.Unmarshal(jsonBlock, &meta); err != nil {
		return meta, fmt.Errorf("%w: metadata json: %v", ErrMalformedHeader, err)
	}
	return meta, nil
}

// readContainer parses the full container: metadata block plus the decrypted,
// decompressed packet stream.
func readContainer(data []byte) (*container, error) {
	meta, err := readMetaBlock(data)
	if err != nil {
		return nil, err
	}

	blocks := binary.LittleEndian.Uint32(data[4:8])
	jsonSize := binary.LittleEndian.Uint32(data[8:12])

	// Extra blocks beyond the metadata block (some clients record two) are
	// length-prefixed the same way; skip past them to the encrypted stream.
	offset := 12 + int(jsonSize)
	for i := uint32(1); i < blocks; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("%w: block %d header", ErrMalformedHeader, i)
		}
		size := binary.LittleEndian.Uint32(data[offset : offset+4])
		offset += 4 + int(size)
		if offset > len(data) {
			return nil, fmt.Errorf("%w: block %d of %d bytes", ErrMalformedHeader, i, size)
		}
	}

	if offset+4 > len(data) {
		return nil, fmt.Errorf("%w: missing stream size", ErrTruncatedStream)
	}
	// Uncompressed-size hint written by the client; the stream itself is
	// authoritative, so the value is only read to advance the offset.
	offset += 4

	stream, err := decryptStream(data[offset:])
	if err != nil {
		return nil, err
	}

	return &container{Meta: meta, Stream: stream}, nil
}

// decryptStream decrypts the Blowfish/ECB packet stream and inflates it.
// Consecutive 8-byte blocks are XOR-chained after decryption.
func decryptStream(enc []byte) ([]byte, error) {
	if len(enc) < blowfish.BlockSize {
		return nil, fmt.Errorf("%w: %d encrypted bytes", ErrTruncatedStream, len(enc))
	}

	cipher, err := blowfish.NewCipher(blowfishKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}

	// Trailing partial block is padding written by the client and carries no
	// packet data.
	usable := len(enc) - len(enc)%blowfish.BlockSize
	plain := make([]byte, usable)

	var prev [blowfish.BlockSize]byte
	for off := 0; off < usable; off += blowfish.BlockSize {
		var block [blowfish.BlockSize]byte
		cipher.Decrypt(block[:], enc[off:off+blowfish.BlockSize])
		for i := range block {
			block[i] ^= prev[i]
		}
		copy(plain[off:], block[:])
		prev = block
	}

	zr, err := zlib.NewReader(bytes.NewReader(plain))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	defer zr.Close()

	stream, err := io.ReadAll(zr)
	if err != nil {
		// A short inflate means the recording was cut off mid-write.
		if len(stream) > 0 {
			return stream, nil
		}
		return nil, fmt.Errorf("%w: inflate: %v", ErrTruncatedStream, err)
	}
	return stream, nil
}
