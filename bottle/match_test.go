package bottle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureSerials = []string{"110222-06", "121119-03", "120323-01"}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{"prefix keeps list order", []string{"12*"}, []string{"121119-03", "120323-01"}},
		{"pattern order ignored", []string{"120*", "121*"}, []string{"121119-03", "120323-01"}},
		{"overlap deduplicated", []string{"12*", "*-01", "*"}, fixtureSerials},
		{"single character", []string{"11022?-0?"}, []string{"110222-06"}},
		{"class", []string{"12[01]*-0[13]"}, []string{"121119-03", "120323-01"}},
		{"negated class", []string{"[!1]*", "12[!1]*"}, []string{"120323-01"}},
		{"case sensitive", []string{"ABC*"}, []string{}},
		{"exact", []string{"121119-03"}, []string{"121119-03"}},
		{"no patterns", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.patterns, fixtureSerials)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_DuplicateSerials(t *testing.T) {
	got, err := Match([]string{"*"}, []string{"110222-06", "110222-06"})
	require.NoError(t, err)
	assert.Equal(t, []string{"110222-06"}, got)
}

func TestMatch_BadPattern(t *testing.T) {
	_, err := Match([]string{"12["}, fixtureSerials)
	require.ErrorIs(t, err, ErrBadPattern)

	_, err = MatchBottles([]string{"[!"}, nil)
	require.ErrorIs(t, err, ErrBadPattern)
}

func TestMatchBottles(t *testing.T) {
	a := newPressureBottle(t, 0)
	b := newBODBottle(t)

	got, err := MatchBottles([]string{"12*", "120323-01"}, []*Bottle{a, b})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, b, got[0])
}
