package protocol

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ReasonInvalidPayload is the machine-readable reason for schema failures.
const ReasonInvalidPayload = "invalid_payload"

// ValidationError is a schema or range violation on an inbound message.
type ValidationError struct {
	Kind    Kind
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Details)
}

// Validator applies the per-kind schemas.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds the validator with the protocol's custom rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("finite", validateFinite)
	_ = v.RegisterValidation("gun", func(fl validator.FieldLevel) bool {
		return slices.Contains(Guns, fl.Field().String())
	})
	v.RegisterStructValidation(validateShoot, Shoot{})

	return &Validator{v: v}
}

// Validate checks msg against the schema of its kind.
func (val *Validator) Validate(msg Message) error {
	err := val.v.Struct(msg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{Kind: msg.Kind(), Details: describe(fieldErrs[0])}
	}

	return &ValidationError{Kind: msg.Kind(), Details: err.Error()}
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return true
		}
		f = f.Elem()
	}

	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		x := f.Float()
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	}

	return true
}

// validateShoot ties the optional fields of a shot to its declared hit kind.
func validateShoot(sl validator.StructLevel) {
	var s Shoot
	switch cur := sl.Current().Interface().(type) {
	case Shoot:
		s = cur
	case *Shoot:
		s = *cur
	default:
		return
	}

	switch s.Hit {
	case HitPlayer:
		if s.HitUUID == "" {
			sl.ReportError(s.HitUUID, "hitUuid", "HitUUID", "required_for_hit", s.Hit)
		}
	default:
		if s.HitUUID != "" {
			sl.ReportError(s.HitUUID, "hitUuid", "HitUUID", "forbidden_for_hit", s.Hit)
		}
	}

	switch s.Hit {
	case HitPlayer, HitWall:
		if s.HitPoint == nil {
			sl.ReportError(s.HitPoint, "hitPoint", "HitPoint", "required_for_hit", s.Hit)
		}
		if s.HitNormal == nil {
			sl.ReportError(s.HitNormal, "hitNormal", "HitNormal", "required_for_hit", s.Hit)
		}
	case HitNone:
		if s.HitPoint != nil {
			sl.ReportError(s.HitPoint, "hitPoint", "HitPoint", "forbidden_for_hit", s.Hit)
		}
		if s.HitNormal != nil {
			sl.ReportError(s.HitNormal, "hitNormal", "HitNormal", "forbidden_for_hit", s.Hit)
		}
	}
}

func describe(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "finite":
		return fmt.Sprintf("%q must be a finite number", field)
	case "min":
		return fmt.Sprintf("%q must be greater than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gun":
		return fmt.Sprintf("%q must be one of [%s]", field, strings.Join(Guns, ", "))
	case "required_for_hit":
		return fmt.Sprintf("%q is required when hit is %s", field, fe.Param())
	case "forbidden_for_hit":
		return fmt.Sprintf("%q is not allowed when hit is %s", field, fe.Param())
	}

	return fmt.Sprintf("%q failed %s", field, fe.Tag())
}
