package middleware

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var errorMessages = map[string]string{
	"required":     "Field is required",
	"min":          "Value is too short",
	"max":          "Value is too long",
	"oneof":        "Value is not one of the allowed values",
	"decimal_gte0": "Amount must not be negative",
	"percent":      "Percentage must be between 0 and 100",
}

var registerOnce sync.Once

// RegisterValidators installs the decimal tags and json field naming on
// gin's binding engine. It is safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("unexpected binding validator engine")
			return
		}

		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		if err = v.RegisterValidation("decimal_gte0", decimalGTE0); err != nil {
			return
		}
		err = v.RegisterValidation("percent", percent)
	})
	return err
}

// decimalValue exposes decimals to the validator as float64
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func decimalGTE0(fl validator.FieldLevel) bool {
	f, ok := floatOf(fl.Field())
	return ok && f >= 0
}

func percent(fl validator.FieldLevel) bool {
	f, ok := floatOf(fl.Field())
	return ok && f >= 0 && f <= 100
}

func floatOf(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	}
	return 0, false
}

// BindingError converts a gin binding failure into an AppError listing the
// offending fields.
func BindingError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.BadRequest("invalid request body", err)
	}

	fields := make([]ValidationError, 0, len(verrs))
	for _, e := range verrs {
		msg := errorMessages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		fields = append(fields, ValidationError{Field: e.Field(), Message: msg})
	}
	return apperrors.Validation("invalid request").WithDetail("fields", fields)
}
