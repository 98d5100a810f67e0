package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"logitdash/domain/core"
)

// StatisticalType defines variable types for analysis
type StatisticalType string

const (
	TypeNumeric     StatisticalType = "numeric"
	TypeCategorical StatisticalType = "categorical"
)

// missingTokens are cell values treated as missing on load
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsMissingToken reports whether a raw cell represents a missing value
func IsMissingToken(cell string) bool {
	return missingTokens[strings.TrimSpace(cell)]
}

// Column is a single typed, read-only column of a Table
type Column struct {
	name   core.ColumnID
	kind   StatisticalType
	raw    []string
	nums   []float64
	levels []string
}

// Name returns the column name
func (c *Column) Name() core.ColumnID { return c.name }

// Type returns the coerced statistical type
func (c *Column) Type() StatisticalType { return c.kind }

// Len returns the number of cells
func (c *Column) Len() int { return len(c.raw) }

// IsMissing reports whether row i holds no value
func (c *Column) IsMissing(i int) bool {
	if c.kind == TypeNumeric {
		return math.IsNaN(c.nums[i])
	}
	return c.raw[i] == ""
}

// Float returns the numeric value of row i, NaN when missing or categorical
func (c *Column) Float(i int) float64 {
	if c.kind != TypeNumeric {
		return math.NaN()
	}
	return c.nums[i]
}

// Label returns the trimmed raw value of row i ("" when missing)
func (c *Column) Label(i int) string { return c.raw[i] }

// Levels returns the sorted distinct non-missing labels
func (c *Column) Levels() []string {
	out := make([]string, len(c.levels))
	copy(out, c.levels)
	return out
}

// Floats returns a copy of the numeric values (NaN for missing)
func (c *Column) Floats() []float64 {
	out := make([]float64, len(c.nums))
	copy(out, c.nums)
	return out
}

// MissingCount counts missing cells
func (c *Column) MissingCount() int {
	n := 0
	for i := range c.raw {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Table is an immutable set of equally long named columns. It is built once
// per load and shared read-only between sessions.
type Table struct {
	name    string
	columns []*Column
	index   map[core.ColumnID]int
	rows    int
}

// NewTable coerces raw string records into typed columns. A column is
// numeric when every non-missing cell parses as a float; otherwise it is
// categorical.
func NewTable(name string, headers []string, rows [][]string) (*Table, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no header row", core.ErrEmptyDataset)
	}
	if len(rows) == 0 {
		return nil, core.ErrEmptyDataset
	}

	t := &Table{
		name:    name,
		columns: make([]*Column, len(headers)),
		index:   make(map[core.ColumnID]int, len(headers)),
		rows:    len(rows),
	}

	for j, h := range headers {
		id, err := core.ParseColumnID(h)
		if err != nil {
			return nil, fmt.Errorf("header %d: %w", j+1, err)
		}
		if _, dup := t.index[id]; dup {
			return nil, fmt.Errorf("duplicate column %q", id)
		}
		t.index[id] = j
		t.columns[j] = &Column{name: id, raw: make([]string, len(rows))}
	}

	for i, row := range rows {
		if len(row) > len(headers) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d", core.ErrRaggedRow, i+2, len(row), len(headers))
		}
		for j := range headers {
			cell := ""
			if j < len(row) {
				cell = strings.TrimSpace(row[j])
			}
			if missingTokens[cell] {
				cell = ""
			}
			t.columns[j].raw[i] = cell
		}
	}

	for _, c := range t.columns {
		c.coerce()
	}
	return t, nil
}

func (c *Column) coerce() {
	nums := make([]float64, len(c.raw))
	numeric := true
	seen := 0
	for i, cell := range c.raw {
		if cell == "" {
			nums[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = v
		seen++
	}

	distinct := make(map[string]struct{})
	for _, cell := range c.raw {
		if cell != "" {
			distinct[cell] = struct{}{}
		}
	}
	c.levels = make([]string, 0, len(distinct))
	for l := range distinct {
		c.levels = append(c.levels, l)
	}

	if numeric && seen > 0 {
		c.kind = TypeNumeric
		c.nums = nums
		sort.Slice(c.levels, func(a, b int) bool {
			x, _ := strconv.ParseFloat(c.levels[a], 64)
			y, _ := strconv.ParseFloat(c.levels[b], 64)
			return x < y
		})
		return
	}

	c.kind = TypeCategorical
	c.nums = make([]float64, len(c.raw))
	for i := range c.nums {
		c.nums[i] = math.NaN()
	}
	sort.Strings(c.levels)
}

// Name returns the dataset name shown in the UI and in code snippets
func (t *Table) Name() string { return t.name }

// Rows returns the number of data rows
func (t *Table) Rows() int { return t.rows }

// Columns returns the column names in file order
func (t *Table) Columns() []core.ColumnID {
	ids := make([]core.ColumnID, len(t.columns))
	for i, c := range t.columns {
		ids[i] = c.name
	}
	return ids
}

// Has reports whether the schema contains the column
func (t *Table) Has(id core.ColumnID) bool {
	_, ok := t.index[id]
	return ok
}

// Column looks a column up by name
func (t *Table) Column(id core.ColumnID) (*Column, bool) {
	j, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.columns[j], true
}

// Records returns the header and raw rows, missing cells as ""
func (t *Table) Records() ([]string, [][]string) {
	headers := core.ColumnNames(t.Columns())
	rows := make([][]string, t.rows)
	for i := range rows {
		row := make([]string, len(t.columns))
		for j, c := range t.columns {
			row[j] = c.raw[i]
		}
		rows[i] = row
	}
	return headers, rows
}
