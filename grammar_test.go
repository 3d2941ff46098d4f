package kernelsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListOptions(t *testing.T) {
	g := NewMultiDGrammar(2, []Kind{KindSE, KindLin})

	masks, err := g.ListOptions(CategoryMask)
	require.NoError(t, err)
	require.Len(t, masks, 4)

	want := []struct {
		dim  int
		kind Kind
	}{{0, KindSE}, {0, KindLin}, {1, KindSE}, {1, KindLin}}

	for i, w := range want {
		m, ok := masks[i].(*MaskKernel)
		require.True(t, ok)
		assert.Equal(t, w.dim, m.ActiveDim())
		assert.Equal(t, 2, m.NDim())
		assert.Equal(t, w.kind, m.Base().(*BaseKernel).Kind())
		assert.Equal(t, w.kind.DefaultParams(), m.Params())
	}

	bases, err := g.ListOptions(CategoryBase)
	require.NoError(t, err)
	assert.Len(t, bases, 2)

	_, err = g.ListOptions(CategoryAny)
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestTypeMatches(t *testing.T) {
	g := NewMultiDGrammar(1, []Kind{KindSE})

	se := DefaultKernel(KindSE, 1)
	m := mustMask(t, 1, 0, se)

	cases := []struct {
		name string
		k    Kernel
		c    Category
		want bool
	}{
		{"base is base", se, CategoryBase, true},
		{"mask is not base", m, CategoryBase, false},
		{"mask is mask", m, CategoryMask, true},
		{"mask is multi", m, CategoryMulti, true},
		{"sum of masks is multi", NewSum(m, m), CategoryMulti, true},
		{"sum with bare base is not multi", NewSum(m, se), CategoryMulti, false},
		{"base is 1d", se, CategoryOneD, true},
		{"nested mask is not 1d", NewProduct(se, NewSum(se, m)), CategoryOneD, false},
		{"anything is any", NewSum(m, se), CategoryAny, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.TypeMatches(tc.k, tc.c)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := g.TypeMatches(se, Category("nope"))
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestNewGrammarRejectsUnknownCategory(t *testing.T) {
	_, err := NewGrammar(1, []Kind{KindSE}, []Rule{
		{LHS: "A", RHS: Var("B"), Types: map[string]Category{"A": CategoryBase, "B": "weird"}},
	})
	require.ErrorIs(t, err, ErrUnknownCategory)

	_, err = NewGrammar(1, []Kind{KindSE}, []Rule{
		{LHS: "A", RHS: Var("A"), Types: map[string]Category{}},
	})
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestExpandMaskedSE(t *testing.T) {
	se := mustMask(t, 1, 0, DefaultKernel(KindSE, 1))
	lin := mustMask(t, 1, 0, DefaultKernel(KindLin, 1))

	got, err := ExpandKernels(1, []Kernel{se}, []Kind{KindSE, KindLin})
	require.NoError(t, err)

	want := []Kernel{
		se,
		lin,
		NewSum(se, se),
		NewSum(se, lin),
		NewProduct(se, se),
		NewProduct(se, lin),
	}

	require.Len(t, got, len(want))

	for i := range want {
		assert.True(t, Equal(want[i], got[i]), "position %d: want %s, got %s", i, want[i], got[i])
	}
}

func TestExpandIsSound(t *testing.T) {
	kinds := []Kind{KindSE, KindPer, KindLin}
	g := NewMultiDGrammar(2, kinds)

	seed := NewSum(
		mustMask(t, 2, 0, DefaultKernel(KindSE, 2)),
		NewProduct(mustMask(t, 2, 1, DefaultKernel(KindLin, 2)), mustMask(t, 2, 0, DefaultKernel(KindPer, 2))),
	)

	expanded, err := g.Expand(seed)
	require.NoError(t, err)
	require.NotEmpty(t, expanded)

	for _, k := range expanded {
		multi, err := g.TypeMatches(k, CategoryMulti)
		require.NoError(t, err)
		assert.True(t, multi, "%s", k)
		assert.GreaterOrEqual(t, k.Depth(), seed.Depth(), "%s", k)
	}

	// Adding any mask at the root is one of the expansions.
	extra := Add(seed, mustMask(t, 2, 1, DefaultKernel(KindPer, 2)))
	assert.True(t, containsKernel(expanded, extra))

	// Replacing a base kind inside a product is one of the expansions.
	swapped := NewSum(
		mustMask(t, 2, 0, DefaultKernel(KindSE, 2)),
		NewProduct(mustMask(t, 2, 1, DefaultKernel(KindSE, 2)), mustMask(t, 2, 0, DefaultKernel(KindPer, 2))),
	)
	assert.True(t, containsKernel(expanded, swapped))
}

func TestExpandKernelsDeduplicatesAcrossSeeds(t *testing.T) {
	kinds := []Kind{KindSE, KindLin}
	a := mustMask(t, 1, 0, DefaultKernel(KindSE, 1))
	b := mustMask(t, 1, 0, DefaultKernel(KindLin, 1))

	both, err := ExpandKernels(1, []Kernel{a, b}, kinds)
	require.NoError(t, err)

	for i := 1; i < len(both); i++ {
		assert.Negative(t, Compare(both[i-1], both[i]), "result is strictly sorted")
	}

	// a+b and b+a collapse to one candidate.
	count := 0

	for _, k := range both {
		if Equal(k, NewSum(a, b)) {
			count++
		}
	}

	assert.Equal(t, 1, count)
}

func TestOneDGrammar(t *testing.T) {
	g := NewOneDGrammar([]Kind{KindSE, KindLin})

	expanded, err := g.Expand(DefaultKernel(KindSE, 1))
	require.NoError(t, err)

	deduped := Deduplicate(expanded)
	assert.Len(t, deduped, 6)

	for _, k := range deduped {
		ok, err := g.TypeMatches(k, CategoryOneD)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func containsKernel(ks []Kernel, k Kernel) bool {
	for _, x := range ks {
		if Equal(x, k) {
			return true
		}
	}

	return false
}
