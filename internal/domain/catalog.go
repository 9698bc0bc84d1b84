package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RuleKind determines how a rule value is computed
type RuleKind string

const (
	RulePercentage RuleKind = "percentage"
	RuleFixed      RuleKind = "fixed"
)

// IsValid checks if the kind is valid
func (k RuleKind) IsValid() bool {
	return k == RulePercentage || k == RuleFixed
}

// RuleCategory buckets a rule into one of the snapshot sections
type RuleCategory string

const (
	RuleCost          RuleCategory = "cost"
	RuleCommission    RuleCategory = "commission"
	RuleTax           RuleCategory = "tax"
	RulePaymentMethod RuleCategory = "payment_method"
)

// IsValid checks if the category is valid
func (c RuleCategory) IsValid() bool {
	switch c {
	case RuleCost, RuleCommission, RuleTax, RulePaymentMethod:
		return true
	}
	return false
}

// RuleScope limits a rule to a fulfillment mode
type RuleScope string

const (
	ScopeAll          RuleScope = "all"
	ScopeDeliveryOnly RuleScope = "delivery_only"
)

// IsValid checks if the scope is valid
func (s RuleScope) IsValid() bool {
	return s == ScopeAll || s == ScopeDeliveryOnly
}

// RuleBase selects the amount a percentage rule applies to
type RuleBase string

const (
	BaseOrderTotal  RuleBase = "order_total"
	BaseDeliveryFee RuleBase = "delivery_fee"
	BaseSubtotal    RuleBase = "subtotal"
)

// IsValid checks if the base is valid
func (b RuleBase) IsValid() bool {
	switch b {
	case BaseOrderTotal, BaseDeliveryFee, BaseSubtotal:
		return true
	}
	return false
}

// FeeRule is a tenant-configured fee, commission or tax. Every live rule
// that matches an order contributes to its snapshot; rules never shadow
// each other. Rules are soft-deleted so historical snapshots keep valid
// references.
type FeeRule struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RuleID   string             `bson:"ruleId" json:"ruleId"`
	TenantID string             `bson:"tenantId" json:"tenantId"`
	Name     string             `bson:"name" json:"name"`

	Kind     RuleKind     `bson:"kind" json:"kind"`
	Category RuleCategory `bson:"category" json:"category"`
	Scope    RuleScope    `bson:"scope" json:"scope"`
	Base     RuleBase     `bson:"base" json:"base"`

	// Rate is the percentage for percentage rules (12 means 12%),
	// Amount the flat value for fixed rules.
	Rate   float64 `bson:"rate,omitempty" json:"rate,omitempty"`
	Amount float64 `bson:"amount,omitempty" json:"amount,omitempty"`

	// Provider empty means the rule applies to every provider.
	Provider string `bson:"provider,omitempty" json:"provider,omitempty"`

	// DeliveryBy restricts the rule to orders delivered by one of the
	// listed carriers. Empty means any carrier.
	DeliveryBy []string `bson:"deliveryBy,omitempty" json:"deliveryBy,omitempty"`

	// PaymentMethods restricts payment_method rules to specific methods.
	PaymentMethods []string `bson:"paymentMethods,omitempty" json:"paymentMethods,omitempty"`

	Active    bool       `bson:"active" json:"active"`
	DeletedAt *time.Time `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// NewFeeRule creates a rule with defaults applied
func NewFeeRule(tenantID, name string, kind RuleKind, category RuleCategory) (*FeeRule, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	if !kind.IsValid() {
		return nil, ErrInvalidRuleKind
	}
	if !category.IsValid() {
		return nil, ErrInvalidRuleCategory
	}
	now := time.Now().UTC()
	return &FeeRule{
		RuleID:    fmt.Sprintf("RUL-%s", uuid.New().String()[:8]),
		TenantID:  tenantID,
		Name:      name,
		Kind:      kind,
		Category:  category,
		Scope:     ScopeAll,
		Base:      BaseOrderTotal,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks the rule invariants
func (r *FeeRule) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidRuleKind
	}
	if !r.Category.IsValid() {
		return ErrInvalidRuleCategory
	}
	if !r.Scope.IsValid() {
		return ErrInvalidRuleScope
	}
	if !r.Base.IsValid() {
		return ErrInvalidRuleBase
	}
	if r.Rate < 0 || r.Amount < 0 {
		return ErrNegativeRuleValue
	}
	return nil
}

// IsLive reports whether the rule participates in matching
func (r *FeeRule) IsLive() bool {
	return r.Active && r.DeletedAt == nil
}

// SoftDelete marks the rule deleted without removing it, so snapshots
// that reference it stay resolvable.
func (r *FeeRule) SoftDelete() error {
	if r.DeletedAt != nil {
		return ErrRuleDeleted
	}
	now := time.Now().UTC()
	r.DeletedAt = &now
	r.Active = false
	r.UpdatedAt = now
	return nil
}

// Matches reports whether the rule applies to the order. Provider
// matching follows the order channel: a rule targeting a provider matches
// orders from that provider directly, and aggregator orders whose
// originating storefront is that provider.
func (r *FeeRule) Matches(o *Order) bool {
	if !r.IsLive() {
		return false
	}

	if r.Scope == ScopeDeliveryOnly && !o.IsDelivery() {
		return false
	}

	if r.Provider != "" {
		matched := r.Provider == o.Provider ||
			(o.Provider == ProviderAggregator && r.Provider == o.Origin)
		if !matched {
			return false
		}
	}

	if len(r.DeliveryBy) > 0 {
		found := false
		for _, carrier := range r.DeliveryBy {
			if carrier == o.DeliveryBy {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if r.Category == RulePaymentMethod && len(r.PaymentMethods) > 0 {
		found := false
		for _, method := range r.PaymentMethods {
			if method == o.PaymentMethod {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// ValueFor computes the rule's monetary contribution for the order
func (r *FeeRule) ValueFor(o *Order) float64 {
	if r.Kind == RuleFixed {
		return r.Amount
	}

	base := o.GrossTotal
	switch r.Base {
	case BaseDeliveryFee:
		base = o.DeliveryFee
	case BaseSubtotal:
		base = o.Subtotal()
	}
	return base * r.Rate / 100
}

// ApplicableRules filters the live rules matching the order. All matches
// contribute; there is no precedence between rules.
func ApplicableRules(rules []*FeeRule, o *Order) []*FeeRule {
	var matched []*FeeRule
	for _, r := range rules {
		if r.Matches(o) {
			matched = append(matched, r)
		}
	}
	return matched
}
