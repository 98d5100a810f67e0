package rng

import (
	"context"
	"math/rand"
)

// Seeded implements ports.RNGPort. Streams are derived from the base seed
// and the stream name, so permuting two variables never shares a sequence.
type Seeded struct{}

// New returns a seeded stream factory
func New() *Seeded {
	return &Seeded{}
}

// Stream creates a deterministic random number generator for a named operation
func (s *Seeded) Stream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != "" {
		seed = int64(hashString(name)) + seed
	}
	return rand.New(rand.NewSource(seed)), nil
}

// hashString is djb2
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c)
	}
	return hash
}
