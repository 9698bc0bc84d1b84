package middleware

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/orderkit/cost-engine/pkg/errors"
)

var (
	validatorOnce     sync.Once
	validatorInstance *validator.Validate
)

// InitValidator registers custom validators on gin's binding validator
func InitValidator() *validator.Validate {
	validatorOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			validatorInstance = v
		} else {
			validatorInstance = validator.New()
		}

		validatorInstance.RegisterValidation("order_id", validateOrderID)
		validatorInstance.RegisterValidation("rule_kind", validateRuleKind)
		validatorInstance.RegisterValidation("rule_category", validateRuleCategory)
		validatorInstance.RegisterValidation("rule_base", validateRuleBase)
	})
	return validatorInstance
}

// GetValidator returns the shared validator instance
func GetValidator() *validator.Validate {
	if validatorInstance == nil {
		return InitValidator()
	}
	return validatorInstance
}

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validateOrderID(fl validator.FieldLevel) bool {
	return orderIDPattern.MatchString(fl.Field().String())
}

func validateRuleKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "percentage", "fixed":
		return true
	}
	return false
}

func validateRuleCategory(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "cost", "commission", "tax", "payment_method":
		return true
	}
	return false
}

func validateRuleBase(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "order_total", "delivery_fee", "subtotal":
		return true
	}
	return false
}

// ValidationErrorFormatter flattens validator errors into a field map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		fields["_"] = err.Error()
		return fields
	}
	for _, e := range validationErrors {
		fields[strings.ToLower(e.Field()[:1])+e.Field()[1:]] = formatValidationError(e)
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "order_id":
		return "must be a valid order identifier"
	case "rule_kind":
		return "must be percentage or fixed"
	case "rule_category":
		return "must be cost, commission, tax or payment_method"
	case "rule_base":
		return "must be order_total, delivery_fee or subtotal"
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}

// BindAndValidate binds the JSON body and validates it, returning an AppError
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return errors.ErrValidation("request validation failed").
				WithDetails(map[string]any{"fields": ValidationErrorFormatter(err)})
		}
		return errors.ErrBadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// ValidateStruct validates a struct outside of request binding
func ValidateStruct(obj any) *errors.AppError {
	if err := GetValidator().Struct(obj); err != nil {
		return errors.ErrValidation("validation failed").
			WithDetails(map[string]any{"fields": ValidationErrorFormatter(err)})
	}
	return nil
}
