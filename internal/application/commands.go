package application

// PreviewAddon is an add-on row in a preview payload
type PreviewAddon struct {
	Name      string  `json:"name" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice float64 `json:"unitPrice" binding:"gte=0"`
}

// PreviewItem is a line item in a preview payload
type PreviewItem struct {
	ItemID    string         `json:"itemId" binding:"required"`
	SKU       string         `json:"sku"`
	Name      string         `json:"name" binding:"required"`
	Quantity  int            `json:"quantity" binding:"required,gt=0"`
	UnitPrice float64        `json:"unitPrice" binding:"gte=0"`
	Addons    []PreviewAddon `json:"addons" binding:"dive"`
}

// PreviewOrderCommand computes a snapshot for an ad-hoc order payload
// without persisting anything
type PreviewOrderCommand struct {
	OrderID       string        `json:"orderId"`
	Provider      string        `json:"provider" binding:"required"`
	Origin        string        `json:"origin"`
	DeliveryBy    string        `json:"deliveryBy"`
	PaymentMethod string        `json:"paymentMethod"`
	GrossTotal    float64       `json:"grossTotal" binding:"required,gt=0"`
	DeliveryFee   float64       `json:"deliveryFee" binding:"gte=0"`
	Items         []PreviewItem `json:"items" binding:"required,min=1,dive"`
}

// StartRecalculationCommand starts a batch recalculation run
type StartRecalculationCommand struct {
	Provider   string   `json:"provider"`
	RuleID     string   `json:"ruleId"`
	OrphanOnly bool     `json:"orphanOnly"`
	OrderIDs   []string `json:"orderIds"`
	BatchSize  int      `json:"batchSize" binding:"gte=0,lte=5000"`
	Workers    int      `json:"workers" binding:"gte=0,lte=32"`
}

// CreateRuleCommand creates a fee rule
type CreateRuleCommand struct {
	Name           string   `json:"name" binding:"required"`
	Kind           string   `json:"kind" binding:"required,rule_kind"`
	Category       string   `json:"category" binding:"required,rule_category"`
	Scope          string   `json:"scope" binding:"omitempty,oneof=all delivery_only"`
	Base           string   `json:"base" binding:"omitempty,rule_base"`
	Rate           float64  `json:"rate" binding:"gte=0"`
	Amount         float64  `json:"amount" binding:"gte=0"`
	Provider       string   `json:"provider"`
	DeliveryBy     []string `json:"deliveryBy"`
	PaymentMethods []string `json:"paymentMethods"`
}

// PreviewRuleCommand evaluates a rule draft against an order payload
type PreviewRuleCommand struct {
	Rule  CreateRuleCommand   `json:"rule" binding:"required"`
	Order PreviewOrderCommand `json:"order" binding:"required"`
}
