package application

import (
	"time"

	"github.com/orderkit/cost-engine/internal/domain"
)

// AppliedRuleDTO is one applied entry, display-rounded
type AppliedRuleDTO struct {
	RuleID string  `json:"ruleId"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
}

// SnapshotDTO is the API representation of a cost snapshot
type SnapshotDTO struct {
	Costs            []AppliedRuleDTO `json:"costs"`
	Commissions      []AppliedRuleDTO `json:"commissions"`
	Taxes            []AppliedRuleDTO `json:"taxes"`
	PaymentMethods   []AppliedRuleDTO `json:"paymentMethods"`
	TotalCosts       float64          `json:"totalCosts"`
	TotalCommissions float64          `json:"totalCommissions"`
	NetRevenue       float64          `json:"netRevenue"`
	ComputedAt       time.Time        `json:"computedAt"`
}

// OrderCostDTO pairs an order with its snapshot
type OrderCostDTO struct {
	OrderID    string       `json:"orderId"`
	Provider   string       `json:"provider"`
	GrossTotal float64      `json:"grossTotal"`
	Snapshot   *SnapshotDTO `json:"snapshot,omitempty"`
}

// AllocationDTO is the API representation of a product allocation
type AllocationDTO struct {
	AllocationID string   `json:"allocationId"`
	ItemID       string   `json:"itemId"`
	Kind         string   `json:"kind"`
	SubKind      string   `json:"subKind"`
	ProductID    string   `json:"productId"`
	Quantity     float64  `json:"quantity"`
	AutoFraction bool     `json:"autoFraction"`
	AddonName    string   `json:"addonName,omitempty"`
	CostOverride *float64 `json:"costOverride,omitempty"`
}

// RuleDTO is the API representation of a fee rule
type RuleDTO struct {
	RuleID         string     `json:"ruleId"`
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	Category       string     `json:"category"`
	Scope          string     `json:"scope"`
	Base           string     `json:"base"`
	Rate           float64    `json:"rate,omitempty"`
	Amount         float64    `json:"amount,omitempty"`
	Provider       string     `json:"provider,omitempty"`
	DeliveryBy     []string   `json:"deliveryBy,omitempty"`
	PaymentMethods []string   `json:"paymentMethods,omitempty"`
	Active         bool       `json:"active"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ProgressDTO is the API representation of a recalculation run
type ProgressDTO struct {
	RunID       string     `json:"runId"`
	Status      string     `json:"status"`
	Total       int64      `json:"total"`
	Processed   int64      `json:"processed"`
	Errors      int64      `json:"errors"`
	Percentage  float64    `json:"percentage"`
	FirstErrors []string   `json:"firstErrors,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// RulePreviewDTO is the outcome of evaluating a rule draft
type RulePreviewDTO struct {
	Matches bool    `json:"matches"`
	Value   float64 `json:"value"`
}

func toAppliedRuleDTOs(rules []domain.AppliedRule) []AppliedRuleDTO {
	out := make([]AppliedRuleDTO, len(rules))
	for i, r := range rules {
		out[i] = AppliedRuleDTO{
			RuleID: r.RuleID,
			Name:   r.Name,
			Value:  domain.RoundDisplay(r.Value),
		}
	}
	return out
}

// ToSnapshotDTO maps a snapshot to its API shape
func ToSnapshotDTO(s *domain.CostSnapshot) *SnapshotDTO {
	if s == nil {
		return nil
	}
	return &SnapshotDTO{
		Costs:            toAppliedRuleDTOs(s.Costs),
		Commissions:      toAppliedRuleDTOs(s.Commissions),
		Taxes:            toAppliedRuleDTOs(s.Taxes),
		PaymentMethods:   toAppliedRuleDTOs(s.PaymentMethods),
		TotalCosts:       domain.RoundDisplay(s.TotalCosts),
		TotalCommissions: domain.RoundDisplay(s.TotalCommissions),
		NetRevenue:       domain.RoundDisplay(s.NetRevenue),
		ComputedAt:       s.ComputedAt,
	}
}

// ToOrderCostDTO maps an order and its snapshot
func ToOrderCostDTO(o *domain.Order) *OrderCostDTO {
	return &OrderCostDTO{
		OrderID:    o.OrderID,
		Provider:   o.Provider,
		GrossTotal: o.GrossTotal,
		Snapshot:   ToSnapshotDTO(o.CostSnapshot),
	}
}

// ToAllocationDTOs maps allocations to their API shape
func ToAllocationDTOs(allocations []*domain.Allocation) []AllocationDTO {
	out := make([]AllocationDTO, len(allocations))
	for i, a := range allocations {
		out[i] = AllocationDTO{
			AllocationID: a.AllocationID,
			ItemID:       a.ItemID,
			Kind:         string(a.Kind),
			SubKind:      string(a.SubKind),
			ProductID:    a.ProductID,
			Quantity:     a.Quantity,
			AutoFraction: a.AutoFraction,
			AddonName:    a.AddonName,
			CostOverride: a.CostOverride,
		}
	}
	return out
}

// ToRuleDTO maps a fee rule to its API shape
func ToRuleDTO(r *domain.FeeRule) *RuleDTO {
	return &RuleDTO{
		RuleID:         r.RuleID,
		Name:           r.Name,
		Kind:           string(r.Kind),
		Category:       string(r.Category),
		Scope:          string(r.Scope),
		Base:           string(r.Base),
		Rate:           r.Rate,
		Amount:         r.Amount,
		Provider:       r.Provider,
		DeliveryBy:     r.DeliveryBy,
		PaymentMethods: r.PaymentMethods,
		Active:         r.Active,
		DeletedAt:      r.DeletedAt,
		CreatedAt:      r.CreatedAt,
	}
}

// ToRuleDTOs maps a rule list
func ToRuleDTOs(rules []*domain.FeeRule) []*RuleDTO {
	out := make([]*RuleDTO, len(rules))
	for i, r := range rules {
		out[i] = ToRuleDTO(r)
	}
	return out
}

// ToProgressDTO maps run progress to its API shape
func ToProgressDTO(p *domain.RunProgress) *ProgressDTO {
	return &ProgressDTO{
		RunID:       p.RunID,
		Status:      string(p.Status),
		Total:       p.Total,
		Processed:   p.Processed,
		Errors:      p.Errors,
		Percentage:  p.Percentage,
		FirstErrors: p.FirstErrors,
		StartedAt:   p.StartedAt,
		FinishedAt:  p.FinishedAt,
	}
}

// OrderFromPreview builds a transient order from a preview payload
func OrderFromPreview(tenantID string, cmd *PreviewOrderCommand) *domain.Order {
	orderID := cmd.OrderID
	if orderID == "" {
		orderID = "preview"
	}
	order := &domain.Order{
		OrderID:       orderID,
		TenantID:      tenantID,
		Provider:      cmd.Provider,
		Origin:        cmd.Origin,
		DeliveryBy:    cmd.DeliveryBy,
		PaymentMethod: cmd.PaymentMethod,
		GrossTotal:    cmd.GrossTotal,
		DeliveryFee:   cmd.DeliveryFee,
	}
	for _, item := range cmd.Items {
		li := domain.LineItem{
			ItemID:    item.ItemID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		for _, addon := range item.Addons {
			li.Addons = append(li.Addons, domain.Addon{
				Name:      addon.Name,
				Quantity:  addon.Quantity,
				UnitPrice: addon.UnitPrice,
			})
		}
		order.Items = append(order.Items, li)
	}
	return order
}

// RuleFromCommand builds a fee rule from a create command
func RuleFromCommand(tenantID string, cmd *CreateRuleCommand) (*domain.FeeRule, error) {
	rule, err := domain.NewFeeRule(tenantID, cmd.Name,
		domain.RuleKind(cmd.Kind), domain.RuleCategory(cmd.Category))
	if err != nil {
		return nil, err
	}
	if cmd.Scope != "" {
		rule.Scope = domain.RuleScope(cmd.Scope)
	}
	if cmd.Base != "" {
		rule.Base = domain.RuleBase(cmd.Base)
	}
	rule.Rate = cmd.Rate
	rule.Amount = cmd.Amount
	rule.Provider = cmd.Provider
	rule.DeliveryBy = cmd.DeliveryBy
	rule.PaymentMethods = cmd.PaymentMethods

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}
