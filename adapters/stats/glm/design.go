package glm

import (
	"fmt"
	"strconv"
	"strings"

	"logitdash/domain/core"
	"logitdash/domain/dataset"
	"logitdash/domain/model"
)

// design is the complete-case design matrix for one request
type design struct {
	X        [][]float64
	y        []float64
	terms    []model.DesignTerm
	positive string
}

// positiveLabels are matched case-insensitively when no level is given
var positiveLabels = []string{"yes", "true", "1"}

// buildDesign drops rows with a missing value in any selected column, codes
// the response to 0/1 and expands categorical terms into treatment
// indicators with the first sorted level as reference.
func buildDesign(req model.Request, t *dataset.Table) (*design, error) {
	resp, ok := t.Column(req.Response)
	if !ok {
		return nil, core.NewUnknownColumnError(string(req.Response))
	}
	cols := make([]*dataset.Column, len(req.Terms))
	for i, id := range req.Terms {
		c, ok := t.Column(id)
		if !ok {
			return nil, core.NewUnknownColumnError(string(id))
		}
		cols[i] = c
	}

	keep := make([]int, 0, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		if resp.IsMissing(i) {
			continue
		}
		complete := true
		for _, c := range cols {
			if c.IsMissing(i) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}

	y, positive, err := codeResponse(resp, keep, req.Level)
	if err != nil {
		return nil, err
	}

	d := &design{
		y:        y,
		positive: positive,
		terms:    []model.DesignTerm{{Name: model.InterceptTerm}},
	}

	// per-term column builders, in request order
	type builder func(row int) []float64
	builders := make([]builder, 0, len(cols))
	for _, c := range cols {
		c := c
		if c.Type() == dataset.TypeNumeric {
			d.terms = append(d.terms, model.DesignTerm{Name: string(c.Name()), Variable: c.Name()})
			builders = append(builders, func(row int) []float64 { return []float64{c.Float(row)} })
			continue
		}

		levels := presentLevels(c, keep)
		if len(levels) < 2 {
			return nil, fmt.Errorf("%w: %q has a single level in the complete cases", core.ErrSingularDesign, c.Name())
		}
		for _, l := range levels[1:] {
			d.terms = append(d.terms, model.DesignTerm{
				Name:     fmt.Sprintf("%s[T.%s]", c.Name(), l),
				Variable: c.Name(),
				Level:    l,
			})
		}
		others := levels[1:]
		builders = append(builders, func(row int) []float64 {
			out := make([]float64, len(others))
			label := c.Label(row)
			for k, l := range others {
				if label == l {
					out[k] = 1
				}
			}
			return out
		})
	}

	d.X = make([][]float64, len(keep))
	for i, row := range keep {
		x := make([]float64, 1, len(d.terms))
		x[0] = 1
		for _, b := range builders {
			x = append(x, b(row)...)
		}
		d.X[i] = x
	}

	if len(d.X) <= len(d.terms) {
		return nil, fmt.Errorf("%w: %d complete rows for %d parameters", core.ErrInsufficientData, len(d.X), len(d.terms))
	}
	return d, nil
}

func presentLevels(c *dataset.Column, keep []int) []string {
	present := make(map[string]bool)
	for _, i := range keep {
		present[c.Label(i)] = true
	}
	levels := make([]string, 0, len(present))
	for _, l := range c.Levels() {
		if present[l] {
			levels = append(levels, l)
		}
	}
	return levels
}

// codeResponse maps the response to 0/1 and reports which label is 1
func codeResponse(c *dataset.Column, keep []int, level string) ([]float64, string, error) {
	levels := presentLevels(c, keep)
	if len(levels) != 2 {
		return nil, "", fmt.Errorf("%w: %q has %d distinct values", core.ErrNotBinary, c.Name(), len(levels))
	}

	positive := ""
	switch {
	case level != "":
		for _, l := range levels {
			if sameLabel(c, l, level) {
				positive = l
			}
		}
		if positive == "" {
			return nil, "", fmt.Errorf("%w: level %q not found in %q", core.ErrNotBinary, level, c.Name())
		}
	case c.Type() == dataset.TypeNumeric:
		lo, _ := strconv.ParseFloat(levels[0], 64)
		hi, _ := strconv.ParseFloat(levels[1], 64)
		if lo != 0 || hi != 1 {
			return nil, "", fmt.Errorf("%w: %q must be coded 0/1", core.ErrNotBinary, c.Name())
		}
		positive = levels[1]
	default:
		positive = levels[0]
	search:
		for _, want := range positiveLabels {
			for _, l := range levels {
				if strings.EqualFold(l, want) {
					positive = l
					break search
				}
			}
		}
	}

	y := make([]float64, len(keep))
	for k, i := range keep {
		if c.Label(i) == positive {
			y[k] = 1
		}
	}
	return y, positive, nil
}

func sameLabel(c *dataset.Column, label, want string) bool {
	if c.Type() != dataset.TypeNumeric {
		return label == want
	}
	a, errA := strconv.ParseFloat(label, 64)
	b, errB := strconv.ParseFloat(want, 64)
	return errA == nil && errB == nil && a == b
}
