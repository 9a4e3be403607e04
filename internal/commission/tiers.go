// Package commission resolves the designer/platform revenue split for a sale
// from the seller's cumulative sales.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is a band of cumulative sales with a fixed revenue split.
// Threshold is in minor currency units.
type Tier struct {
	Name        string `json:"name"`
	Threshold   int64  `json:"threshold"`
	DesignerPct int    `json:"designer_pct"`
	PlatformPct int    `json:"platform_pct"`
}

// Table is an ascending, validated list of tiers. It is immutable once built.
type Table struct {
	tiers []Tier
}

// DefaultTable is the process-wide tier table.
var DefaultTable = MustNewTable([]Tier{
	{Name: "Bronze", Threshold: 0, DesignerPct: 70, PlatformPct: 30},
	{Name: "Silver", Threshold: 10_000, DesignerPct: 75, PlatformPct: 25},
	{Name: "Gold", Threshold: 100_000, DesignerPct: 80, PlatformPct: 20},
	{Name: "Platinum", Threshold: 1_000_000, DesignerPct: 83, PlatformPct: 17},
})

// NewTable validates tiers and returns a table. The first tier must start at
// zero, thresholds must strictly ascend and each split must total 100.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("commission table is empty")
	}
	if tiers[0].Threshold != 0 {
		return nil, fmt.Errorf("lowest tier %q must have threshold 0, got %d", tiers[0].Name, tiers[0].Threshold)
	}

	for i, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("tier %d has no name", i)
		}
		if t.DesignerPct < 0 || t.PlatformPct < 0 {
			return nil, fmt.Errorf("tier %q has a negative percentage", t.Name)
		}
		if t.DesignerPct+t.PlatformPct != 100 {
			return nil, fmt.Errorf("tier %q split %d+%d does not total 100", t.Name, t.DesignerPct, t.PlatformPct)
		}
		if i > 0 && t.Threshold <= tiers[i-1].Threshold {
			return nil, fmt.Errorf("tier %q threshold %d does not ascend past %q", t.Name, t.Threshold, tiers[i-1].Name)
		}
	}

	copied := make([]Tier, len(tiers))
	copy(copied, tiers)
	return &Table{tiers: copied}, nil
}

// MustNewTable is NewTable that panics on an invalid table.
func MustNewTable(tiers []Tier) *Table {
	t, err := NewTable(tiers)
	if err != nil {
		panic(err)
	}
	return t
}

// Tiers returns a copy of the table, ascending by threshold.
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Resolve returns the highest tier whose threshold is <= salesTotal. The
// caller passes the total as it stood before the sale being priced.
func (t *Table) Resolve(salesTotal int64) Tier {
	for i := len(t.tiers) - 1; i >= 0; i-- {
		if t.tiers[i].Threshold <= salesTotal {
			return t.tiers[i]
		}
	}
	return t.tiers[0]
}

// ResolveTier resolves against DefaultTable.
func ResolveTier(salesTotal int64) Tier {
	return DefaultTable.Resolve(salesTotal)
}

// Split divides total between designer and platform. The designer share is
// rounded half-up and the platform receives the remainder, so the two always
// add up to total.
func Split(total int64, tier Tier) (designer, platform int64) {
	designer = decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(int64(tier.DesignerPct))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	return designer, total - designer
}

// Percent returns pct percent of amount, rounded half-up.
func Percent(amount int64, pct int) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(pct))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
