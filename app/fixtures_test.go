package app

import (
	"context"
	"io"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"logitdash/adapters/charts"
	"logitdash/adapters/rng"
	"logitdash/adapters/stats/glm"
	"logitdash/adapters/stats/importance"
	"logitdash/domain/dataset"
	"logitdash/internal"
	"logitdash/ports"
)

// dvdTable is a reproducible stand-in for the dvd dataset: buy depends on
// coupon and purchase, training is a two-level factor.
func dvdTable(t *testing.T) *dataset.Table {
	t.Helper()
	src := rand.New(rand.NewSource(2024))
	rows := make([][]string, 500)
	for i := range rows {
		coupon := src.Intn(3)
		purchase := src.Intn(10)
		training := []string{"no", "yes"}[src.Intn(2)]
		eta := -2 + 0.9*float64(coupon) + 0.15*float64(purchase)
		if training == "yes" {
			eta += 0.4
		}
		buy := "no"
		if src.Float64() < 1/(1+math.Exp(-eta)) {
			buy = "yes"
		}
		rows[i] = []string{buy, strconv.Itoa(coupon), strconv.Itoa(purchase), training}
	}
	tbl, err := dataset.NewTable("dvd", []string{"buy", "coupon", "purchase", "training"}, rows)
	require.NoError(t, err)
	return tbl
}

func quietLogger() *internal.Logger {
	return internal.NewLoggerTo(io.Discard, internal.LogLevelError, "text")
}

// newTestService wires the real estimator, ranker and renderer
func newTestService(journal ports.FitJournalPort) *ModelService {
	return NewModelService(ModelServiceDeps{
		Stats:      glm.NewEstimator(glm.DefaultConfig()),
		Importance: importance.NewRanker(rng.New(), importance.Config{Repeats: 2, Seed: 1234, Workers: 2}),
		Plots:      charts.NewRenderer(charts.Config{}),
		Journal:    journal,
		Logger:     quietLogger(),
	})
}

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) Record(ctx context.Context, rec ports.FitRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockJournal) Recent(ctx context.Context, limit int) ([]ports.FitRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]ports.FitRecord)
	return recs, args.Error(1)
}

func (m *mockJournal) Close() error {
	return m.Called().Error(0)
}
