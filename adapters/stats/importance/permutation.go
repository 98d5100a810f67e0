package importance

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"logitdash/adapters/stats/glm"
	"logitdash/domain/core"
	"logitdash/domain/model"
	"logitdash/ports"
)

// Config controls the permutation runs
type Config struct {
	Repeats int   // shuffles per variable
	Seed    int64 // base seed, combined with the variable name per stream
	Workers int   // variables evaluated concurrently
}

// DefaultConfig returns five repeats on four workers
func DefaultConfig() Config {
	return Config{Repeats: 5, Seed: 1234, Workers: 4}
}

// Ranker implements ports.ImportancePort. Importance of a variable is the
// drop in AUC after its design columns are shuffled jointly, so every
// indicator of a categorical variable moves together.
type Ranker struct {
	rng    ports.RNGPort
	config Config
}

// NewRanker creates a permutation importance ranker
func NewRanker(rng ports.RNGPort, config Config) *Ranker {
	def := DefaultConfig()
	if config.Repeats <= 0 {
		config.Repeats = def.Repeats
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	return &Ranker{rng: rng, config: config}
}

// PermutationImportance scores every explanatory variable of m, in request order
func (r *Ranker) PermutationImportance(ctx context.Context, m *model.FittedModel) ([]model.Importance, error) {
	if m == nil || len(m.Design) == 0 {
		return nil, fmt.Errorf("%w: model has no design matrix", core.ErrInsufficientData)
	}

	baseline := glm.AUC(m.Predict(m.Design), m.Observed)
	indices := m.TermIndices()
	out := make([]model.Importance, len(m.Request.Terms))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for k, variable := range m.Request.Terms {
		k, variable := k, variable
		g.Go(func() error {
			scores, err := r.score(ctx, m, variable, indices[variable], baseline)
			if err != nil {
				return fmt.Errorf("permuting %s: %w", variable, err)
			}
			mean, _ := stats.Mean(scores)
			sd, _ := stats.StandardDeviationPopulation(scores)
			out[k] = model.Importance{Variable: string(variable), Mean: mean, StdDev: sd}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Ranker) score(ctx context.Context, m *model.FittedModel, variable core.ColumnID, cols []int, baseline float64) (stats.Float64Data, error) {
	stream, err := r.rng.Stream(ctx, string(variable), r.config.Seed)
	if err != nil {
		return nil, err
	}

	n := len(m.Design)
	shuffled := make([][]float64, n)
	for i, row := range m.Design {
		shuffled[i] = append([]float64(nil), row...)
	}

	scores := make(stats.Float64Data, 0, r.config.Repeats)
	for rep := 0; rep < r.config.Repeats; rep++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perm := stream.Perm(n)
		for i := range shuffled {
			for _, j := range cols {
				shuffled[i][j] = m.Design[perm[i]][j]
			}
		}
		scores = append(scores, baseline-glm.AUC(m.Predict(shuffled), m.Observed))
	}
	return scores, nil
}
