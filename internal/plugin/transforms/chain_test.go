package transforms

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
)

func suffix(s string) InjectFunc {
	return func(_ context.Context, src string) (string, bool, error) {
		return src + s, true, nil
	}
}

func TestChainAppliesInRegistrationOrder(t *testing.T) {
	chain := NewChain([]Injector{
		{Name: "one", Fn: suffix("-1")},
		{Name: "two", Fn: suffix("-2")},
		{Name: "three", Fn: suffix("-3")},
	})

	out, report := chain.Apply(context.Background(), "base")
	assert.Equal(t, "base-1-2-3", out)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, "one", report.Steps[0].Injector)
	assert.Equal(t, "three", report.Steps[2].Injector)
	assert.Equal(t, 3, report.Count(OutcomeApplied))
}

// Two suffix injectors followed by one that errors: the output keeps both
// suffixes and the failure is reported without aborting the chain.
func TestChainSuffixesThenError(t *testing.T) {
	rec := metrics.NewMemoryRecorder()
	chain := NewChain([]Injector{
		{Name: "add-1", Fn: suffix("-1")},
		{Name: "add-2", Fn: suffix("-2")},
		{Name: "boom", Fn: func(context.Context, string) (string, bool, error) {
			return "garbage", true, errors.New("anchor missing")
		}},
	}, WithRecorder(rec))

	out, report := chain.Apply(context.Background(), "base")
	assert.Equal(t, "base-1-2", out)
	require.Len(t, report.Steps, 3)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Injector)
	assert.True(t, derrors.IsCategory(failed[0].Err, derrors.CategoryInject))
	assert.Equal(t, 1, rec.Injectors["boom"][metrics.ResultFailed])
	assert.Equal(t, 1, rec.Injectors["add-2"][metrics.ResultApplied])
}

func TestChainIsolatesPanics(t *testing.T) {
	chain := NewChain([]Injector{
		{Name: "panics", Fn: func(context.Context, string) (string, bool, error) {
			panic("nil map")
		}},
		{Name: "after", Fn: suffix("!")},
	})

	out, report := chain.Apply(context.Background(), "x")
	assert.Equal(t, "x!", out)
	assert.Equal(t, OutcomeFailed, report.Steps[0].Outcome)
	assert.ErrorContains(t, report.Steps[0].Err, "panic: nil map")
	assert.Equal(t, OutcomeApplied, report.Steps[1].Outcome)
}

func TestChainNoChangeKeepsWorkingText(t *testing.T) {
	chain := NewChain([]Injector{
		{Name: "noop", Fn: func(context.Context, string) (string, bool, error) {
			return "ignored", false, nil
		}},
		{Name: "nil-fn"},
	})

	out, report := chain.Apply(context.Background(), "keep")
	assert.Equal(t, "keep", out)
	assert.Equal(t, 2, report.Count(OutcomeUnchanged))
}

func TestChainLaterInjectorSeesEarlierAnchor(t *testing.T) {
	chain := NewChain([]Injector{
		{Name: "anchor", Fn: Rewrite("anchor", regexp.MustCompile(`main\(\)`), "main()\n# ANCHOR", false, nil)},
		{Name: "near-anchor", Fn: Rewrite("near-anchor", regexp.MustCompile(`# ANCHOR`), "# ANCHOR\nextra()", false, nil)},
	})

	out, _ := chain.Apply(context.Background(), "main()")
	assert.Equal(t, "main()\n# ANCHOR\nextra()", out)
}

func TestChainCopiesInjectors(t *testing.T) {
	injectors := []Injector{{Name: "one", Fn: suffix("-1")}}
	chain := NewChain(injectors)
	injectors[0] = Injector{Name: "swapped", Fn: suffix("-x")}

	out, _ := chain.Apply(context.Background(), "a")
	assert.Equal(t, "a-1", out)
	assert.Equal(t, 1, chain.Len())
}
