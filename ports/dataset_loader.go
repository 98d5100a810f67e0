package ports

import (
	"io"

	"logitdash/domain/dataset"
)

// DatasetLoaderPort reads tables from disk or from an upload stream.
// Failures are DATA_LOAD_ERROR AppErrors.
type DatasetLoaderPort interface {
	Load(path string) (*dataset.Table, error)
	LoadReader(filename string, r io.Reader) (*dataset.Table, error)
}
