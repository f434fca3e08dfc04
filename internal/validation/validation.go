// Package validation checks write payloads before anything is persisted.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/pkg/models"
)

var pincodeRe = regexp.MustCompile(`^\d{6}$`)

// Validator wraps a configured go-playground validator. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the marketplace rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
		return pincodeRe.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(specsLevel, models.Specs{})
	return &Validator{v: v}
}

func specsLevel(sl validator.StructLevel) {
	s := sl.Current().Interface().(models.Specs)
	if s.Floor != nil && s.TotalFloors != nil && *s.Floor > *s.TotalFloors {
		sl.ReportError(s.Floor, "floor", "Floor", "ltefloors", "")
	}
}

// Struct validates v and converts failures into a validation error keyed by JSON path.
func (val *Validator) Struct(v any) error {
	err := val.v.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("validate payload", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fieldPath(fe.Namespace())
		if _, seen := fields[key]; !seen {
			fields[key] = message(fe)
		}
	}
	return apperr.Validation("validation failed", fields)
}

// Property normalizes in and validates it. Strings are trimmed, amenities are
// deduplicated in order of first appearance, images are sorted by order and
// exactly one image ends up flagged as cover.
func (val *Validator) Property(in *models.PropertyInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Address.FullAddress = strings.TrimSpace(in.Address.FullAddress)
	in.Address.City = strings.TrimSpace(in.Address.City)
	in.Address.State = strings.TrimSpace(in.Address.State)
	in.Address.Pincode = strings.TrimSpace(in.Address.Pincode)
	in.Address.Landmark = strings.TrimSpace(in.Address.Landmark)
	in.Amenities = dedupe(in.Amenities)

	if err := val.Struct(in); err != nil {
		return err
	}

	sort.SliceStable(in.Images, func(i, j int) bool { return in.Images[i].Order < in.Images[j].Order })
	covers := 0
	for _, img := range in.Images {
		if img.IsCover {
			covers++
		}
	}
	switch {
	case covers > 1:
		return apperr.Field("images", "at most one image may be the cover")
	case covers == 0:
		in.Images[0].IsCover = true
	}
	return nil
}

// Inquiry trims the message and validates the payload.
func (val *Validator) Inquiry(in *models.InquiryInput) error {
	in.Message = strings.TrimSpace(in.Message)
	in.PropertyID = strings.TrimSpace(in.PropertyID)
	return val.Struct(in)
}

func dedupe(items []string) []string {
	if items == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s entries", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s entries", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "pincode":
		return "must be exactly 6 digits"
	case "http_url":
		return "must be an http or https URL"
	case "email":
		return "must be a valid email address"
	case "ltefloors":
		return "must not exceed totalFloors"
	default:
		return "is invalid"
	}
}
