package payment

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

type requestValidator struct {
	validate *validator.Validate
}

// newRequestValidator checks phone numbers against the numbering plan of region (ISO 3166 alpha-2).
func newRequestValidator(region string) *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return validPhoneNumber(fl.Field().String(), region)
	})
	return &requestValidator{validate: v}
}

func validPhoneNumber(number, region string) bool {
	p, err := libphonenumber.Parse(number, region)
	if err != nil {
		return false
	}
	return libphonenumber.IsValidNumber(p)
}

// fieldErrors maps json field name to the failing rule; nil when the input is valid.
func (r *requestValidator) fieldErrors(in any) map[string]string {
	err := r.validate.Struct(in)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"_": err.Error()}
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func (r *requestValidator) validatePay(in *PayInput) map[string]string {
	fields := r.fieldErrors(in)
	if !in.Amount.IsPositive() {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["amount"] = "gt"
	}
	return fields
}
