package importance

import (
	"context"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logitdash/adapters/rng"
	"logitdash/adapters/stats/glm"
	"logitdash/domain/dataset"
	"logitdash/domain/model"
)

// fitted returns a model where "signal" drives the response and "noise"
// is unrelated to it.
func fitted(t *testing.T) *model.FittedModel {
	t.Helper()
	src := rand.New(rand.NewSource(7))
	rows := make([][]string, 400)
	for i := range rows {
		signal := src.NormFloat64()
		noise := src.NormFloat64()
		buy := "no"
		if src.Float64() < model.Logistic(2*signal) {
			buy = "yes"
		}
		rows[i] = []string{
			buy,
			strconv.FormatFloat(signal, 'f', 6, 64),
			strconv.FormatFloat(noise, 'f', 6, 64),
			[]string{"north", "south"}[i%2],
		}
	}
	tbl, err := dataset.NewTable("sim", []string{"buy", "signal", "noise", "region"}, rows)
	require.NoError(t, err)

	req := model.NewRequest("buy", []string{"signal", "noise", "region"}, "")
	m, err := glm.NewEstimator(glm.DefaultConfig()).FitBinomialGLM(context.Background(), req, tbl)
	require.NoError(t, err)
	return m
}

func TestPermutationImportance_RanksSignalFirst(t *testing.T) {
	m := fitted(t)
	ranker := NewRanker(rng.New(), Config{Repeats: 10, Seed: 1234, Workers: 2})

	got, err := ranker.PermutationImportance(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "signal", got[0].Variable)
	assert.Equal(t, "noise", got[1].Variable)
	assert.Equal(t, "region", got[2].Variable)
	assert.Greater(t, got[0].Mean, 0.1)
	assert.Greater(t, got[0].Mean, got[1].Mean)
	assert.Greater(t, got[0].Mean, got[2].Mean)
	for _, imp := range got {
		assert.GreaterOrEqual(t, imp.StdDev, 0.0, imp.Variable)
	}
}

func TestPermutationImportance_DeterministicForSeed(t *testing.T) {
	m := fitted(t)

	first, err := NewRanker(rng.New(), Config{Repeats: 4, Seed: 99, Workers: 3}).PermutationImportance(context.Background(), m)
	require.NoError(t, err)
	second, err := NewRanker(rng.New(), Config{Repeats: 4, Seed: 99, Workers: 1}).PermutationImportance(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPermutationImportance_LeavesDesignUntouched(t *testing.T) {
	m := fitted(t)
	before := make([]float64, len(m.Design[0]))
	copy(before, m.Design[0])

	_, err := NewRanker(rng.New(), DefaultConfig()).PermutationImportance(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, before, m.Design[0])
}

func TestPermutationImportance_Errors(t *testing.T) {
	ranker := NewRanker(rng.New(), DefaultConfig())

	_, err := ranker.PermutationImportance(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ranker.PermutationImportance(ctx, fitted(t))
	assert.ErrorIs(t, err, context.Canceled)
}
