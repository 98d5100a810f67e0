package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"logitdash/domain/core"
	"logitdash/domain/dataset"
	"logitdash/internal"
	"logitdash/internal/errors"
)

// Format identifies a supported dataset file type
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatCBOR    Format = "cbor"
	FormatCBORZst Format = "cbor.zst"
)

// suffixes are checked longest first so .cbor.zst wins over .zst
var suffixes = []struct {
	ext    string
	format Format
}{
	{".cbor.zst", FormatCBORZst},
	{".cbor", FormatCBOR},
	{".csv", FormatCSV},
	{".xlsx", FormatXLSX},
}

// DetectFormat returns the format implied by the file name
func DetectFormat(filename string) (Format, bool) {
	lower := strings.ToLower(filename)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return s.format, true
		}
	}
	return "", false
}

// DatasetName strips directory and format suffix: "data/dvd.csv" -> "dvd"
func DatasetName(filename string) string {
	base := filepath.Base(filename)
	lower := strings.ToLower(base)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return base[:len(base)-len(s.ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Config bounds what the loader accepts
type Config struct {
	MaxBytes int64
}

// DefaultConfig allows 50MB files
func DefaultConfig() Config {
	return Config{MaxBytes: 50 << 20}
}

// Loader implements ports.DatasetLoaderPort for CSV, XLSX and CBOR frames
type Loader struct {
	config Config
	log    *internal.Logger
}

// NewLoader creates a loader. A nil logger uses internal.DefaultLogger.
func NewLoader(config Config, log *internal.Logger) *Loader {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultConfig().MaxBytes
	}
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Loader{config: config, log: log}
}

// Load reads a dataset file from disk
func (l *Loader) Load(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.DataLoadError("cannot open "+path, err)
	}
	defer f.Close()
	return l.LoadReader(path, f)
}

// LoadReader reads a dataset whose format is implied by filename
func (l *Loader) LoadReader(filename string, r io.Reader) (*dataset.Table, error) {
	start := time.Now()
	format, ok := DetectFormat(filename)
	if !ok {
		return nil, errors.DataLoadError(filepath.Base(filename), fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, filepath.Ext(filename)))
	}

	data, err := io.ReadAll(io.LimitReader(r, l.config.MaxBytes+1))
	if err != nil {
		return nil, errors.DataLoadError("cannot read "+filepath.Base(filename), err)
	}
	if int64(len(data)) > l.config.MaxBytes {
		return nil, errors.DataLoadError(filepath.Base(filename), fmt.Errorf("file exceeds %d bytes", l.config.MaxBytes))
	}

	name := DatasetName(filename)
	var table *dataset.Table
	switch format {
	case FormatCSV:
		table, err = readCSV(name, data)
	case FormatXLSX:
		table, err = readXLSX(name, data)
	case FormatCBOR:
		table, err = decodeFrame(data, false, name, l.config.MaxBytes)
	case FormatCBORZst:
		table, err = decodeFrame(data, true, name, l.config.MaxBytes)
	}
	if err != nil {
		return nil, errors.DataLoadError(filepath.Base(filename), err)
	}

	l.log.Info("[DatasetLoader] %s loaded as %s (%d columns, %d rows) in %.2fms",
		filepath.Base(filename), format, len(table.Columns()), table.Rows(), float64(time.Since(start).Nanoseconds())/1e6)
	return table, nil
}

// Save writes the table as a CBOR frame; a .cbor.zst path is compressed
func (l *Loader) Save(path string, t *dataset.Table) error {
	format, ok := DetectFormat(path)
	if !ok || (format != FormatCBOR && format != FormatCBORZst) {
		return errors.DataLoadError("cannot save "+path, fmt.Errorf("%w: only .cbor and .cbor.zst can be written", core.ErrUnsupportedFormat))
	}
	data, err := EncodeFrame(t, format == FormatCBORZst)
	if err != nil {
		return errors.DataLoadError("cannot save "+path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.DataLoadError("cannot save "+path, err)
	}
	l.log.Info("[DatasetLoader] %s written (%d bytes)", path, len(data))
	return nil
}

func readCSV(name string, data []byte) (*dataset.Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return processRows(name, rows)
}

// readXLSX reads the first sheet of the workbook
func readXLSX(name string, data []byte) (*dataset.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.ErrEmptyDataset
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return processRows(name, rows)
}

// processRows splits off the header row
func processRows(name string, rows [][]string) (*dataset.Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: need a header row and at least one data row", core.ErrEmptyDataset)
	}
	return dataset.NewTable(name, rows[0], rows[1:])
}
