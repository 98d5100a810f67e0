package reactive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dashboard mirrors the shape of the real graph: a formula calc shared
// by two outputs and an event output that only reacts to its trigger.
func dashboard(t *testing.T) *Graph {
	t.Helper()
	g := New()
	require.NoError(t, g.Input("resp", ""))
	require.NoError(t, g.Input("expl", []string(nil)))
	require.NoError(t, g.Input("click", 0))

	require.NoError(t, g.Calc("formula", []Key{"resp", "expl"}, func(ctx context.Context, s *Scope) (interface{}, error) {
		if s.String("resp") == "" {
			return nil, errors.New("no response")
		}
		return s.String("resp") + " ~ " + strings.Join(s.Strings("expl"), " + "), nil
	}))
	require.NoError(t, g.Output("summary", []Key{"resp"}, func(ctx context.Context, s *Scope) (interface{}, error) {
		return "response: " + s.String("resp"), nil
	}))
	require.NoError(t, g.Output("table", []Key{"formula"}, func(ctx context.Context, s *Scope) (interface{}, error) {
		f, err := s.Calc("formula")
		if err != nil {
			return nil, err
		}
		return "table(" + f.(string) + ")", nil
	}))
	require.NoError(t, g.Output("snippet", []Key{"click"}, func(ctx context.Context, s *Scope) (interface{}, error) {
		return "fit " + s.String("resp"), nil
	}))
	return g
}

func TestSet_MarksOnlyDependents(t *testing.T) {
	g := dashboard(t)

	dirty, err := g.Set("expl", []string{"coupon"})
	require.NoError(t, err)
	assert.Equal(t, []Key{"table"}, dirty)

	dirty, err = g.Set("resp", "buy")
	require.NoError(t, err)
	assert.Equal(t, []Key{"summary", "table"}, dirty)

	dirty, err = g.Set("click", 1)
	require.NoError(t, err)
	assert.Equal(t, []Key{"snippet"}, dirty)
}

func TestSet_EqualValueIsNoop(t *testing.T) {
	g := dashboard(t)
	_, err := g.Set("expl", []string{"coupon", "purchase"})
	require.NoError(t, err)

	dirty, err := g.Set("expl", []string{"coupon", "purchase"})
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestSet_UnknownInput(t *testing.T) {
	_, err := dashboard(t).Set("nope", 1)
	assert.ErrorIs(t, err, ErrUnknownInput)
}

func TestRead_RecomputesOncePerChange(t *testing.T) {
	g := dashboard(t)
	ctx := context.Background()
	_, _ = g.SetMany(map[Key]interface{}{"resp": "buy", "expl": []string{"coupon", "purchase"}})

	for i := 0; i < 3; i++ {
		v, err := g.Read(ctx, "table")
		require.NoError(t, err)
		assert.Equal(t, "table(buy ~ coupon + purchase)", v)
	}
	assert.Equal(t, 1, g.Runs("table"))
	assert.Equal(t, 1, g.Runs("formula"))

	_, _ = g.Set("click", 1)
	_, err := g.Read(ctx, "table")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Runs("table"), "click does not touch the table")

	_, _ = g.Set("expl", []string{"coupon"})
	v, err := g.Read(ctx, "table")
	require.NoError(t, err)
	assert.Equal(t, "table(buy ~ coupon)", v)
	assert.Equal(t, 2, g.Runs("table"))
	assert.Equal(t, 2, g.Runs("formula"))
}

func TestRead_EventOutputIgnoresUndeclaredReads(t *testing.T) {
	g := dashboard(t)
	ctx := context.Background()
	_, _ = g.Set("resp", "buy")

	v, err := g.Read(ctx, "snippet")
	require.NoError(t, err)
	assert.Equal(t, "fit buy", v)

	dirty, _ := g.Set("resp", "rent")
	assert.NotContains(t, dirty, Key("snippet"))
	v, _ = g.Read(ctx, "snippet")
	assert.Equal(t, "fit buy", v, "stale until the trigger fires")

	_, _ = g.Set("click", 1)
	v, _ = g.Read(ctx, "snippet")
	assert.Equal(t, "fit rent", v)
}

func TestRead_CachesErrors(t *testing.T) {
	g := dashboard(t)
	ctx := context.Background()

	_, err := g.Read(ctx, "table")
	require.Error(t, err)
	_, err = g.Read(ctx, "table")
	require.Error(t, err)
	assert.Equal(t, 1, g.Runs("table"))

	_, _ = g.Set("resp", "buy")
	_, err = g.Read(ctx, "table")
	assert.NoError(t, err)
}

func TestRead_PanicBecomesCachedError(t *testing.T) {
	g := New()
	require.NoError(t, g.Input("x", 0))
	require.NoError(t, g.Calc("ratio", []Key{"x"}, func(ctx context.Context, s *Scope) (interface{}, error) {
		if s.Int("x") <= 0 {
			panic("values must be greater than 0")
		}
		return 10 / s.Int("x"), nil
	}))
	require.NoError(t, g.Output("plot", []Key{"ratio"}, func(ctx context.Context, s *Scope) (interface{}, error) {
		return s.Calc("ratio")
	}))
	ctx := context.Background()

	_, err := g.Read(ctx, "plot")
	assert.ErrorIs(t, err, ErrPanic)
	assert.NotErrorIs(t, err, ErrCycle)
	_, err = g.Read(ctx, "plot")
	assert.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, 1, g.Runs("ratio"))

	_, _ = g.Set("x", 5)
	v, err := g.Read(ctx, "plot")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestRead_UnknownOutput(t *testing.T) {
	_, err := dashboard(t).Read(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestRead_CancelledContextNotCached(t *testing.T) {
	g := New()
	require.NoError(t, g.Input("x", 1))
	require.NoError(t, g.Output("y", []Key{"x"}, func(ctx context.Context, s *Scope) (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.Int("x") * 2, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Read(ctx, "y")
	assert.ErrorIs(t, err, context.Canceled)

	v, err := g.Read(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestDefine_Errors(t *testing.T) {
	g := dashboard(t)
	noop := func(ctx context.Context, s *Scope) (interface{}, error) { return nil, nil }

	assert.ErrorIs(t, g.Output("summary", nil, noop), ErrDuplicate)
	assert.ErrorIs(t, g.Input("resp", ""), ErrDuplicate)
	assert.ErrorIs(t, g.Output("late", []Key{"undeclared"}, noop), ErrUnknownInput)
}

func TestCalc_CycleThroughScope(t *testing.T) {
	g := New()
	require.NoError(t, g.Calc("a", nil, func(ctx context.Context, s *Scope) (interface{}, error) {
		return s.Calc("a")
	}))
	_, err := g.Read(context.Background(), "a")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestSubscribe(t *testing.T) {
	g := dashboard(t)
	var mu sync.Mutex
	var got [][]Key
	cancel := g.Subscribe(func(dirty []Key) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, dirty)
	})

	_, _ = g.Set("resp", "buy")
	_, _ = g.Set("resp", "buy")
	cancel()
	_, _ = g.Set("click", 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]Key{{"summary", "table"}}, got)
}

func TestReset_WithoutValues(t *testing.T) {
	g := dashboard(t)
	ctx := context.Background()
	_, _ = g.Set("resp", "buy")
	_, _ = g.Read(ctx, "summary")

	dirty, err := g.Reset(nil)
	require.NoError(t, err)
	assert.Equal(t, []Key{"snippet", "summary", "table"}, dirty)
	_, _ = g.Read(ctx, "summary")
	assert.Equal(t, 2, g.Runs("summary"))
	assert.Equal(t, []Key{"snippet", "summary", "table"}, g.Outputs())
}

func TestReset(t *testing.T) {
	g := dashboard(t)
	ctx := context.Background()
	_, _ = g.SetMany(map[Key]interface{}{"resp": "buy", "click": 1})
	v, _ := g.Read(ctx, "snippet")
	require.Equal(t, "fit buy", v)

	var notified [][]Key
	g.Subscribe(func(dirty []Key) { notified = append(notified, dirty) })

	dirty, err := g.Reset(map[Key]interface{}{"resp": "rent"})
	require.NoError(t, err)
	assert.Equal(t, []Key{"snippet", "summary", "table"}, dirty)
	assert.Equal(t, [][]Key{{"snippet", "summary", "table"}}, notified)

	v, _ = g.Read(ctx, "snippet")
	assert.Equal(t, "fit rent", v, "event output recomputes after a reset")

	_, err = g.Reset(map[Key]interface{}{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownInput)
}
