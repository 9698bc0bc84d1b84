package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostSnapshot_Finalize(t *testing.T) {
	snapshot := &CostSnapshot{
		Costs: []AppliedRule{
			{RuleID: SnapshotCMVEntryID, Name: "Cost of goods", Value: 10.00},
		},
		Commissions: []AppliedRule{
			{RuleID: "RUL-1", Name: "Marketplace commission", Value: 6.24},
		},
	}

	snapshot.Finalize(52.00)

	assert.InDelta(t, 10.00, snapshot.TotalCosts, MoneyTolerance)
	assert.InDelta(t, 6.24, snapshot.TotalCommissions, MoneyTolerance)
	assert.InDelta(t, 35.76, snapshot.NetRevenue, MoneyTolerance)
}

func TestCostSnapshot_FinalizeKeepsTaxesOutOfTotals(t *testing.T) {
	snapshot := &CostSnapshot{
		Costs: []AppliedRule{
			{RuleID: SnapshotCMVEntryID, Name: "Cost of goods", Value: 10.00},
		},
		Commissions: []AppliedRule{
			{RuleID: "RUL-1", Name: "Marketplace commission", Value: 6.24},
		},
		Taxes:          []AppliedRule{{RuleID: "RUL-tax", Name: "City tax", Value: 2.00}},
		PaymentMethods: []AppliedRule{{RuleID: "RUL-pay", Name: "Card fee", Value: 1.50}},
	}

	snapshot.Finalize(52.00)

	assert.InDelta(t, 10.00, snapshot.TotalCosts, MoneyTolerance)
	assert.InDelta(t, 6.24, snapshot.TotalCommissions, MoneyTolerance)
	assert.InDelta(t, 35.76, snapshot.NetRevenue, MoneyTolerance)
	assert.InDelta(t, 2.00, snapshot.Taxes[0].Value, MoneyTolerance)
	assert.InDelta(t, 1.50, snapshot.PaymentMethods[0].Value, MoneyTolerance)
}

func TestCostSnapshot_FinalizeRounds(t *testing.T) {
	snapshot := &CostSnapshot{
		Costs: []AppliedRule{{RuleID: "RUL-1", Value: 1.234567}},
	}
	snapshot.Finalize(10)

	assert.Equal(t, 1.2346, snapshot.Costs[0].Value)
	assert.Equal(t, 1.2346, snapshot.TotalCosts)
}

func TestCostSnapshot_RuleIDsExcludesCMV(t *testing.T) {
	snapshot := &CostSnapshot{
		Costs: []AppliedRule{
			{RuleID: SnapshotCMVEntryID, Value: 10},
			{RuleID: "RUL-cost", Value: 1},
		},
		Commissions:    []AppliedRule{{RuleID: "RUL-comm", Value: 2}},
		Taxes:          []AppliedRule{{RuleID: "RUL-tax", Value: 3}},
		PaymentMethods: []AppliedRule{{RuleID: "RUL-pay", Value: 4}},
	}

	ids := snapshot.RuleIDs()
	require.Len(t, ids, 4)
	assert.NotContains(t, ids, SnapshotCMVEntryID)
	assert.Contains(t, ids, "RUL-cost")
	assert.Contains(t, ids, "RUL-pay")
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 1.2346, RoundMoney(1.23456))
	assert.Equal(t, 1.23, RoundDisplay(1.2346))
	assert.True(t, MoneyEquals(0.1+0.2, 0.3))
}
