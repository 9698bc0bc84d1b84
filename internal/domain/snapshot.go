package domain

import (
	"math"
	"time"
)

// SnapshotCMVEntryID is the reserved applied-entry ID carrying the cost of
// goods sold inside the costs bucket. It is not a catalog rule and is
// skipped by orphan detection.
const SnapshotCMVEntryID = "cmv"

// MoneyTolerance is the comparison tolerance for recomputed totals
const MoneyTolerance = 1e-6

// AppliedRule is one resolved contribution inside a snapshot
type AppliedRule struct {
	RuleID string  `bson:"ruleId" json:"ruleId"`
	Name   string  `bson:"name" json:"name"`
	Value  float64 `bson:"value" json:"value"`
}

// CostSnapshot is the reproducible record of one cost resolution. It is
// replaced atomically on every recomputation.
type CostSnapshot struct {
	Costs          []AppliedRule `bson:"costs" json:"costs"`
	Commissions    []AppliedRule `bson:"commissions" json:"commissions"`
	Taxes          []AppliedRule `bson:"taxes" json:"taxes"`
	PaymentMethods []AppliedRule `bson:"paymentMethods" json:"paymentMethods"`

	TotalCosts       float64 `bson:"totalCosts" json:"totalCosts"`
	TotalCommissions float64 `bson:"totalCommissions" json:"totalCommissions"`
	NetRevenue       float64 `bson:"netRevenue" json:"netRevenue"`

	ComputedAt time.Time `bson:"computedAt" json:"computedAt"`
}

// RuleIDs returns every catalog rule referenced by the snapshot,
// excluding the reserved CMV entry.
func (s *CostSnapshot) RuleIDs() []string {
	var ids []string
	for _, bucket := range [][]AppliedRule{s.Costs, s.Commissions, s.Taxes, s.PaymentMethods} {
		for _, r := range bucket {
			if r.RuleID == SnapshotCMVEntryID {
				continue
			}
			ids = append(ids, r.RuleID)
		}
	}
	return ids
}

// Finalize recomputes the totals from the applied entries and rounds
// every monetary value for persistence.
func (s *CostSnapshot) Finalize(grossTotal float64) {
	for _, bucket := range [][]AppliedRule{s.Costs, s.Commissions, s.Taxes, s.PaymentMethods} {
		for i := range bucket {
			bucket[i].Value = RoundMoney(bucket[i].Value)
		}
	}

	s.TotalCosts = 0
	for _, r := range s.Costs {
		s.TotalCosts += r.Value
	}

	// Taxes and payment fees stay bucketed for reporting but enter
	// neither total. Only commission entries feed TotalCommissions.
	s.TotalCommissions = 0
	for _, r := range s.Commissions {
		s.TotalCommissions += r.Value
	}

	s.TotalCosts = RoundMoney(s.TotalCosts)
	s.TotalCommissions = RoundMoney(s.TotalCommissions)
	s.NetRevenue = RoundMoney(grossTotal - s.TotalCosts - s.TotalCommissions)
}

// RoundMoney rounds to 4 decimal places, the persistence precision
func RoundMoney(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// RoundDisplay rounds to 2 decimal places for API presentation
func RoundDisplay(v float64) float64 {
	return math.Round(v*100) / 100
}

// MoneyEquals compares two monetary values within tolerance
func MoneyEquals(a, b float64) bool {
	return math.Abs(a-b) < MoneyTolerance
}
