package dataset

import (
	"math"

	"github.com/montanaflynn/stats"

	"logitdash/domain/core"
)

// ColumnSummary describes a column for the variable pickers and the CLI
type ColumnSummary struct {
	Name        core.ColumnID   `json:"name"`
	Type        StatisticalType `json:"type"`
	Missing     int             `json:"missing"`
	LevelCount  int             `json:"levels"`
	Binary      bool            `json:"binary"`
	Mean        float64         `json:"mean,omitempty"`
	StdDev      float64         `json:"std_dev,omitempty"`
	Min         float64         `json:"min,omitempty"`
	Max         float64         `json:"max,omitempty"`
	TopLevel    string          `json:"top_level,omitempty"`
	TopLevelPct float64         `json:"top_level_pct,omitempty"`
}

// Summarize builds a ColumnSummary for every column in file order
func Summarize(t *Table) []ColumnSummary {
	out := make([]ColumnSummary, 0, len(t.columns))
	for _, c := range t.columns {
		out = append(out, summarizeColumn(c))
	}
	return out
}

func summarizeColumn(c *Column) ColumnSummary {
	s := ColumnSummary{
		Name:       c.name,
		Type:       c.kind,
		Missing:    c.MissingCount(),
		LevelCount: len(c.levels),
		Binary:     len(c.levels) == 2,
	}

	if c.kind == TypeNumeric {
		values := make(stats.Float64Data, 0, len(c.nums))
		for _, v := range c.nums {
			if !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		s.Mean, _ = values.Mean()
		if sd, err := values.StandardDeviationSample(); err == nil && !math.IsNaN(sd) {
			s.StdDev = sd
		}
		s.Min, _ = values.Min()
		s.Max, _ = values.Max()
		return s
	}

	counts := make(map[string]int, len(c.levels))
	present := 0
	for _, l := range c.raw {
		if l != "" {
			counts[l]++
			present++
		}
	}
	for _, l := range c.levels {
		if counts[l] > counts[s.TopLevel] {
			s.TopLevel = l
		}
	}
	if present > 0 {
		s.TopLevelPct = float64(counts[s.TopLevel]) / float64(present)
	}
	return s
}
