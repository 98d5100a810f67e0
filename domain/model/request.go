package model

import (
	"fmt"
	"strings"

	"logitdash/domain/core"
	"logitdash/domain/dataset"
)

// Request is a structured logistic regression request. It replaces the
// string formula: names are validated against the schema first and the
// formula is only derived afterwards.
type Request struct {
	Response core.ColumnID   `json:"response"`
	Level    string          `json:"level,omitempty"`
	Terms    []core.ColumnID `json:"terms"`
}

// NewRequest builds a request from raw picker values
func NewRequest(response string, terms []string, level string) Request {
	return Request{
		Response: core.ColumnID(strings.TrimSpace(response)),
		Level:    strings.TrimSpace(level),
		Terms:    core.ColumnIDs(terms),
	}
}

// CheckSelection validates the parts of the request that do not need the
// dataset: both selections present, no duplicates, response not a term.
func (r Request) CheckSelection() error {
	if r.Response == "" {
		return core.ErrEmptyResponse
	}
	if len(r.Terms) == 0 {
		return core.ErrNoTerms
	}
	seen := make(map[core.ColumnID]bool, len(r.Terms))
	for _, t := range r.Terms {
		if t == r.Response {
			return fmt.Errorf("%w: %q", core.ErrResponseInTerms, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: %q", core.ErrDuplicateTerm, t)
		}
		seen[t] = true
	}
	return nil
}

// Validate checks the selection and that every column exists in the table
func (r Request) Validate(t *dataset.Table) error {
	if err := r.CheckSelection(); err != nil {
		return err
	}
	if !t.Has(r.Response) {
		return core.NewUnknownColumnError(string(r.Response))
	}
	for _, term := range r.Terms {
		if !t.Has(term) {
			return core.NewUnknownColumnError(string(term))
		}
	}
	return nil
}

// Formula renders "<response> ~ <t1> + <t2> + ..."
func (r Request) Formula() string {
	return string(r.Response) + " ~ " + strings.Join(core.ColumnNames(r.Terms), " + ")
}

// Columns returns the response followed by the terms
func (r Request) Columns() []core.ColumnID {
	cols := make([]core.ColumnID, 0, len(r.Terms)+1)
	cols = append(cols, r.Response)
	return append(cols, r.Terms...)
}
