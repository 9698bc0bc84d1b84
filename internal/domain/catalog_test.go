package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder() *Order {
	return &Order{
		OrderID:     "ORD-1",
		TenantID:    "tenant-1",
		Provider:    "ifood",
		GrossTotal:  52.00,
		DeliveryFee: 5.00,
		DeliveryBy:  "marketplace",
	}
}

func TestNewFeeRule(t *testing.T) {
	rule, err := NewFeeRule("tenant-1", "Marketplace commission", RulePercentage, RuleCommission)
	require.NoError(t, err)

	assert.Contains(t, rule.RuleID, "RUL-")
	assert.Equal(t, ScopeAll, rule.Scope)
	assert.Equal(t, BaseOrderTotal, rule.Base)
	assert.True(t, rule.Active)
	assert.True(t, rule.IsLive())
}

func TestNewFeeRule_Validation(t *testing.T) {
	_, err := NewFeeRule("", "x", RulePercentage, RuleCommission)
	assert.ErrorIs(t, err, ErrTenantRequired)

	_, err = NewFeeRule("tenant-1", "", RulePercentage, RuleCommission)
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = NewFeeRule("tenant-1", "x", RuleKind("bogus"), RuleCommission)
	assert.ErrorIs(t, err, ErrInvalidRuleKind)

	_, err = NewFeeRule("tenant-1", "x", RulePercentage, RuleCategory("bogus"))
	assert.ErrorIs(t, err, ErrInvalidRuleCategory)
}

func TestFeeRule_Matches_Provider(t *testing.T) {
	order := newTestOrder()

	tests := []struct {
		name     string
		provider string
		want     bool
	}{
		{"unscoped rule matches any provider", "", true},
		{"matching provider", "ifood", true},
		{"other provider", "rappi", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewFeeRule("tenant-1", "commission", RulePercentage, RuleCommission)
			require.NoError(t, err)
			rule.Provider = tt.provider
			assert.Equal(t, tt.want, rule.Matches(order))
		})
	}
}

func TestFeeRule_Matches_AggregatorOrigin(t *testing.T) {
	order := newTestOrder()
	order.Provider = ProviderAggregator
	order.Origin = "ifood"

	rule, err := NewFeeRule("tenant-1", "ifood commission", RulePercentage, RuleCommission)
	require.NoError(t, err)
	rule.Provider = "ifood"

	assert.True(t, rule.Matches(order), "aggregator order should match rules targeting its origin")

	rule.Provider = "rappi"
	assert.False(t, rule.Matches(order))
}

func TestFeeRule_Matches_DeliveryCarrier(t *testing.T) {
	order := newTestOrder()
	order.DeliveryBy = "own_fleet"

	rule, err := NewFeeRule("tenant-1", "fleet fee", RuleFixed, RuleCost)
	require.NoError(t, err)
	rule.DeliveryBy = []string{"marketplace"}
	assert.False(t, rule.Matches(order))

	rule.DeliveryBy = []string{"marketplace", "own_fleet"}
	assert.True(t, rule.Matches(order))

	rule.DeliveryBy = nil
	assert.True(t, rule.Matches(order))
}

func TestFeeRule_Matches_DeliveryOnlyScope(t *testing.T) {
	rule, err := NewFeeRule("tenant-1", "delivery fee share", RulePercentage, RuleCost)
	require.NoError(t, err)
	rule.Scope = ScopeDeliveryOnly

	pickup := newTestOrder()
	pickup.DeliveryBy = ""
	pickup.DeliveryFee = 0
	assert.False(t, rule.Matches(pickup))

	delivery := newTestOrder()
	assert.True(t, rule.Matches(delivery))
}

func TestFeeRule_Matches_PaymentMethod(t *testing.T) {
	order := newTestOrder()
	order.PaymentMethod = "credit_card"

	rule, err := NewFeeRule("tenant-1", "card fee", RulePercentage, RulePaymentMethod)
	require.NoError(t, err)
	rule.PaymentMethods = []string{"credit_card", "debit_card"}
	assert.True(t, rule.Matches(order))

	rule.PaymentMethods = []string{"pix"}
	assert.False(t, rule.Matches(order))
}

func TestFeeRule_SoftDelete(t *testing.T) {
	rule, err := NewFeeRule("tenant-1", "commission", RulePercentage, RuleCommission)
	require.NoError(t, err)

	require.NoError(t, rule.SoftDelete())
	assert.NotNil(t, rule.DeletedAt)
	assert.False(t, rule.IsLive())
	assert.False(t, rule.Matches(newTestOrder()))

	assert.ErrorIs(t, rule.SoftDelete(), ErrRuleDeleted)
}

func TestFeeRule_ValueFor(t *testing.T) {
	order := newTestOrder() // gross 52.00, delivery 5.00

	tests := []struct {
		name string
		kind RuleKind
		base RuleBase
		rate float64
		amt  float64
		want float64
	}{
		{"percentage of order total", RulePercentage, BaseOrderTotal, 12, 0, 6.24},
		{"percentage of delivery fee", RulePercentage, BaseDeliveryFee, 10, 0, 0.50},
		{"percentage of subtotal", RulePercentage, BaseSubtotal, 10, 0, 4.70},
		{"fixed amount", RuleFixed, BaseOrderTotal, 0, 1.99, 1.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewFeeRule("tenant-1", tt.name, tt.kind, RuleCommission)
			require.NoError(t, err)
			rule.Base = tt.base
			rule.Rate = tt.rate
			rule.Amount = tt.amt
			assert.InDelta(t, tt.want, rule.ValueFor(order), MoneyTolerance)
		})
	}
}

func TestApplicableRules_AllMatchesContribute(t *testing.T) {
	order := newTestOrder()

	commission, err := NewFeeRule("tenant-1", "commission", RulePercentage, RuleCommission)
	require.NoError(t, err)
	commission.Rate = 12

	providerFee, err := NewFeeRule("tenant-1", "ifood fee", RuleFixed, RuleCost)
	require.NoError(t, err)
	providerFee.Provider = "ifood"
	providerFee.Amount = 0.99

	otherProvider, err := NewFeeRule("tenant-1", "rappi fee", RuleFixed, RuleCost)
	require.NoError(t, err)
	otherProvider.Provider = "rappi"

	deleted, err := NewFeeRule("tenant-1", "old commission", RulePercentage, RuleCommission)
	require.NoError(t, err)
	require.NoError(t, deleted.SoftDelete())

	matched := ApplicableRules([]*FeeRule{commission, providerFee, otherProvider, deleted}, order)
	require.Len(t, matched, 2)
	assert.Equal(t, commission.RuleID, matched[0].RuleID)
	assert.Equal(t, providerFee.RuleID, matched[1].RuleID)
}
