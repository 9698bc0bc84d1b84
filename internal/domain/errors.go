package domain

import "errors"

// Domain validation errors
var (
	ErrTenantRequired        = errors.New("tenant is required")
	ErrNameRequired          = errors.New("name is required")
	ErrNegativePrice         = errors.New("price cannot be negative")
	ErrInvalidCategory       = errors.New("invalid product category")
	ErrInvalidRuleKind       = errors.New("invalid rule kind")
	ErrInvalidRuleCategory   = errors.New("invalid rule category")
	ErrInvalidRuleBase       = errors.New("invalid calculation base")
	ErrInvalidRuleScope      = errors.New("invalid rule scope")
	ErrNegativeRuleValue     = errors.New("rule value cannot be negative")
	ErrInvalidClassification = errors.New("invalid mapping classification")
	ErrMappingKeyRequired    = errors.New("mapping key is required")
	ErrOrderIDRequired       = errors.New("order id is required")
	ErrItemIDRequired        = errors.New("item id is required")
	ErrProductRequired       = errors.New("product id is required")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrOrderNotFound         = errors.New("order not found")
	ErrRuleNotFound          = errors.New("fee rule not found")
	ErrRuleDeleted           = errors.New("fee rule is deleted")
	ErrRunNotFound           = errors.New("recalculation run not found")
	ErrRunNotCancellable     = errors.New("recalculation run is not cancellable")
)
