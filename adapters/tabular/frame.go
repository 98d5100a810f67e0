package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"logitdash/domain/dataset"
)

// frame is the serialized dataframe layout. Missing cells are "".
type frame struct {
	Name    string     `cbor:"name"`
	Columns []string   `cbor:"columns"`
	Rows    [][]string `cbor:"rows"`
}

// encMode is Core Deterministic Encoding: the same table always produces
// identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

// zstdEncoder is safe for concurrent use
var zstdEncoder *zstd.Encoder

// errFrameTooLarge is returned when a frame decompresses past the size limit
var errFrameTooLarge = errors.New("decompressed frame exceeds size limit")

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tabular: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("tabular: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("tabular: zstd encoder initialization failed: " + err.Error())
	}
}

// EncodeFrame serializes a table to CBOR, zstd-compressed when compress is set
func EncodeFrame(t *dataset.Table, compress bool) ([]byte, error) {
	headers, rows := t.Records()
	data, err := encMode.Marshal(frame{Name: t.Name(), Columns: headers, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if compress {
		return zstdEncoder.EncodeAll(data, nil), nil
	}
	return data, nil
}

// decodeFrame is the inverse of EncodeFrame. fallbackName is used when
// the frame carries no name. A compressed frame may not inflate past
// maxBytes.
func decodeFrame(data []byte, compressed bool, fallbackName string, maxBytes int64) (*dataset.Table, error) {
	if compressed {
		raw, err := decompress(data, maxBytes)
		if err != nil {
			return nil, err
		}
		data = raw
	}

	var f frame
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	name := f.Name
	if name == "" {
		name = fallbackName
	}
	return dataset.NewTable(name, f.Columns, f.Rows)
}

func decompress(data []byte, maxBytes int64) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("decompress frame: %w", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(io.LimitReader(dec, maxBytes+1))
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
		return nil, fmt.Errorf("%w: %v", errFrameTooLarge, err)
	}
	if err != nil {
		return nil, fmt.Errorf("decompress frame: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errFrameTooLarge, maxBytes)
	}
	return raw, nil
}
