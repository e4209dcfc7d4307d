package validators

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// customRules are the domain tags available on request structs.
var customRules = map[string]validator.Func{
	"money": func(fl validator.FieldLevel) bool {
		amount, err := decimal.NewFromString(fl.Field().String())
		return err == nil && amount.IsPositive() && amount.Exponent() >= -2
	},
	"payment_method": func(fl validator.FieldLevel) bool {
		return enums.PaymentMethod(fl.Field().String()).IsValid()
	},
	"payment_outcome": func(fl validator.FieldLevel) bool {
		return enums.PaymentOutcome(fl.Field().String()).IsValid()
	},
}

var ruleMessages = map[string]string{
	"required":        "is required",
	"uuid":            "must be a valid uuid",
	"uuid4":           "must be a valid uuid",
	"url":             "must be a valid url",
	"http_url":        "must be a valid url",
	"money":           "must be a positive amount with at most two decimals",
	"payment_method":  "must be cash or gateway",
	"payment_outcome": "must be approved or rejected",
}

var paramMessages = map[string]string{
	"min":   "must be at least %s",
	"max":   "must be at most %s",
	"gt":    "must be greater than %s",
	"oneof": "must be one of [%s]",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	for tag, fn := range customRules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	return v
}

// jsonFieldName reports fields under their wire name.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := ruleMessages[fe.Tag()]; ok {
		return msg
	}
	if format, ok := paramMessages[fe.Tag()]; ok {
		return fmt.Sprintf(format, fe.Param())
	}
	return "is invalid"
}
