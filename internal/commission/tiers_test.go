package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTierMonotonic(t *testing.T) {
	// 0, 99.99, 100, 999.99, 1000, 9999.99, 10000 in major units
	totals := []int64{0, 9_999, 10_000, 99_999, 100_000, 999_999, 1_000_000}
	want := []int{70, 70, 75, 75, 80, 80, 83}

	prev := 0
	for i, total := range totals {
		tier := ResolveTier(total)
		assert.Equal(t, want[i], tier.DesignerPct, "sales total %d", total)
		assert.GreaterOrEqual(t, tier.DesignerPct, prev)
		prev = tier.DesignerPct
	}
}

func TestResolveTierBoundaries(t *testing.T) {
	assert.Equal(t, "Bronze", ResolveTier(-5).Name)
	assert.Equal(t, "Bronze", ResolveTier(50).Name)
	assert.Equal(t, "Silver", ResolveTier(10_000).Name)
	assert.Equal(t, "Gold", ResolveTier(100_000).Name)
	assert.Equal(t, "Platinum", ResolveTier(50_000_000).Name)
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{name: "empty"},
		{name: "no zero tier", tiers: []Tier{{Name: "A", Threshold: 10, DesignerPct: 70, PlatformPct: 30}}},
		{name: "split not 100", tiers: []Tier{{Name: "A", DesignerPct: 70, PlatformPct: 20}}},
		{
			name: "not ascending",
			tiers: []Tier{
				{Name: "A", DesignerPct: 70, PlatformPct: 30},
				{Name: "B", Threshold: 100, DesignerPct: 75, PlatformPct: 25},
				{Name: "C", Threshold: 100, DesignerPct: 80, PlatformPct: 20},
			},
		},
		{name: "unnamed", tiers: []Tier{{DesignerPct: 70, PlatformPct: 30}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.tiers)
			assert.Error(t, err)
		})
	}

	assert.Panics(t, func() { MustNewTable(nil) })
}

func TestDefaultTableSplitsTotal100(t *testing.T) {
	for _, tier := range DefaultTable.Tiers() {
		assert.Equal(t, 100, tier.DesignerPct+tier.PlatformPct, tier.Name)
	}
}

func TestSplit(t *testing.T) {
	bronze := ResolveTier(50)

	designer, platform := Split(600, bronze)
	assert.Equal(t, int64(420), designer)
	assert.Equal(t, int64(180), platform)

	designer, platform = Split(400, bronze)
	assert.Equal(t, int64(280), designer)
	assert.Equal(t, int64(120), platform)
}

func TestSplitConservesTotal(t *testing.T) {
	for _, tier := range DefaultTable.Tiers() {
		for _, total := range []int64{1, 3, 7, 99, 101, 1234, 99_999, 123_457} {
			designer, platform := Split(total, tier)
			require.Equal(t, total, designer+platform, "tier %s total %d", tier.Name, total)

			ratio := float64(designer) / float64(total)
			assert.InDelta(t, float64(tier.DesignerPct)/100, ratio, 0.5/float64(total)+1e-9)
		}
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, int64(100), Percent(1000, 10))
	assert.Equal(t, int64(1), Percent(5, 10))
	assert.Equal(t, int64(0), Percent(1000, 0))
}
