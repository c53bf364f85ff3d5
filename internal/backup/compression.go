package backup

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses archived payloads with one algorithm
type Compressor interface {
	Algorithm() CompressionType
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressorFor returns the compressor of algorithm
func CompressorFor(algorithm CompressionType) (Compressor, error) {
	switch algorithm {
	case CompressionTypeGzip:
		return gzipCompressor{}, nil
	case CompressionTypeLZ4:
		return lz4Compressor{}, nil
	case CompressionTypeZstd:
		return zstdCompressor{}, nil
	}
	return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
}

// compressPayload compresses data when compression is enabled and data
// reaches the threshold. It returns the algorithm actually applied.
func compressPayload(cfg CompressionConfig, data []byte) ([]byte, CompressionType, error) {
	if !cfg.Enabled || cfg.Algorithm == CompressionTypeNone || int64(len(data)) < cfg.Threshold {
		return data, CompressionTypeNone, nil
	}
	c, err := CompressorFor(cfg.Algorithm)
	if err != nil {
		return nil, "", err
	}
	out, err := c.Compress(data, cfg.Level)
	if err != nil {
		return nil, "", err
	}
	return out, cfg.Algorithm, nil
}

// decompressPayload reverses compressPayload
func decompressPayload(algorithm CompressionType, data []byte) ([]byte, error) {
	if algorithm == "" || algorithm == CompressionTypeNone {
		return data, nil
	}
	c, err := CompressorFor(algorithm)
	if err != nil {
		return nil, err
	}
	return c.Decompress(data)
}

type gzipCompressor struct{}

func (gzipCompressor) Algorithm() CompressionType { return CompressionTypeGzip }

func (gzipCompressor) Compress(data []byte, level int) ([]byte, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, NewCompressionError("failed to write gzip data", err)
	}
	if err := w.Close(); err != nil {
		return nil, NewCompressionError("failed to close gzip writer", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewCompressionError("failed to create gzip reader", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, NewCompressionError("failed to decompress gzip data", err)
	}
	return out, nil
}

type lz4Compressor struct{}

func (lz4Compressor) Algorithm() CompressionType { return CompressionTypeLZ4 }

// Compress uses the fast mode up to level 6 and level 9 above it
func (lz4Compressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if level > 6 {
		if err := w.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, NewCompressionError("failed to set lz4 level", err)
		}
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, NewCompressionError("failed to write lz4 data", err)
	}
	if err := w.Close(); err != nil {
		return nil, NewCompressionError("failed to close lz4 writer", err)
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, NewCompressionError("failed to decompress lz4 data", err)
	}
	return out, nil
}

type zstdCompressor struct{}

func (zstdCompressor) Algorithm() CompressionType { return CompressionTypeZstd }

func (zstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	var encoderLevel zstd.EncoderLevel
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, NewCompressionError("failed to create zstd encoder", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, NewCompressionError("failed to create zstd decoder", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, NewCompressionError("failed to decompress zstd data", err)
	}
	return out, nil
}
