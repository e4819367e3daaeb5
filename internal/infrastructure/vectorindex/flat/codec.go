package flat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// File layout, little endian:
//
//	magic   [4]byte "KBVX"
//	version uint16
//	codec   uint8
//	_       uint8
//	dim     uint32
//	count   uint32
//	rawLen  uint64  uncompressed payload bytes
//	dataLen uint64  stored payload bytes
//	crc     uint32  IEEE CRC32 of the uncompressed payload
//	payload [dataLen]byte
const (
	fileMagic     = "KBVX"
	formatVersion = 1
	headerSize    = 36
)

var ErrCorrupt = errors.New("corrupt vector index")

type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	raw := make([]byte, 4*len(idx.data))
	for i, v := range idx.data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}

	payload, codec, err := compress(raw, idx.compression)
	if err != nil {
		return 0, fmt.Errorf("compress vectors: %w", err)
	}

	header := make([]byte, headerSize)
	copy(header[0:4], fileMagic)
	binary.LittleEndian.PutUint16(header[4:], formatVersion)
	header[6] = byte(codec)
	binary.LittleEndian.PutUint32(header[8:], uint32(idx.dim))
	binary.LittleEndian.PutUint32(header[12:], uint32(idx.count))
	binary.LittleEndian.PutUint64(header[16:], uint64(len(raw)))
	binary.LittleEndian.PutUint64(header[24:], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[32:], crc32.ChecksumIEEE(raw))

	n, err := w.Write(header)
	written := int64(n)
	if err != nil {
		return written, err
	}
	n, err = w.Write(payload)
	written += int64(n)
	return written, err
}

// Read decodes an index written by WriteTo and verifies its checksum.
func Read(r io.Reader) (*Index, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}
	if string(header[0:4]) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, header[0:4])
	}
	if v := binary.LittleEndian.Uint16(header[4:]); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	codec := Compression(header[6])
	dim := int(binary.LittleEndian.Uint32(header[8:]))
	count := int(binary.LittleEndian.Uint32(header[12:]))
	rawLen := binary.LittleEndian.Uint64(header[16:])
	dataLen := binary.LittleEndian.Uint64(header[24:])
	sum := binary.LittleEndian.Uint32(header[32:])

	if dim <= 0 || rawLen != uint64(dim)*uint64(count)*4 {
		return nil, fmt.Errorf("%w: header declares %d x %d but %d bytes", ErrCorrupt, count, dim, rawLen)
	}
	if dataLen > rawLen {
		return nil, fmt.Errorf("%w: stored payload larger than raw payload", ErrCorrupt)
	}

	payload := make([]byte, dataLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", ErrCorrupt, err)
	}

	raw, err := decompress(payload, codec, int(rawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if crc32.ChecksumIEEE(raw) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	data := make([]float32, dim*count)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return &Index{dim: dim, count: count, data: data, compression: codec}, nil
}

// compress falls back to storing raw bytes when the codec does not help.
func compress(raw []byte, c Compression) ([]byte, Compression, error) {
	if len(raw) == 0 {
		return raw, CompressionNone, nil
	}

	var out []byte
	switch c {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, 0, err
		}
		out = buf[:n]
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, err
		}
		out = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, 0, fmt.Errorf("unknown compression %d", uint8(c))
	}

	if len(out) == 0 || len(out) >= len(raw) {
		return raw, CompressionNone, nil
	}
	return out, c, nil
}

func decompress(payload []byte, c Compression, rawLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(payload) != rawLen {
			return nil, fmt.Errorf("payload has %d bytes, want %d", len(payload), rawLen)
		}
		return payload, nil
	case CompressionLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if n != rawLen {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case CompressionZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, err
		}
		if len(out) != rawLen {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression %d", uint8(c))
	}
}
