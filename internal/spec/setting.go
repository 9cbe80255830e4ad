package spec

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/viant/weaver/internal/diagnostics"
)

var validate = validator.New()

// ValidateSetting checks a concrete Setting against its SettingDescription
// and, for enum/enum-selection kinds, against the Enumeration it
// references. Range and membership checks are delegated to
// go-playground/validator's single-field Var validation so the weaver
// never hand-rolls numeric-range or "one-of" comparisons; the
// "at-least-one-required" enum-selection rule has no single-tag
// equivalent and is checked directly.
func ValidateSetting(desc SettingDescription, s Setting, enums map[string]Enumeration) error {
	switch desc.Kind {
	case SettingBool:
		if _, ok := s.Value.(bool); !ok {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name, "expected a bool value")
		}
	case SettingInt:
		n, ok := asInt(s.Value)
		if !ok {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name, "expected an int value")
		}
		if desc.HasIntRange {
			tag := fmt.Sprintf("min=%d,max=%d", desc.IntMin, desc.IntMax)
			if err := validate.Var(n, tag); err != nil {
				return diagnostics.NewConstraintViolationError("setting:"+desc.Name,
					fmt.Sprintf("value %d out of range [%d,%d]", n, desc.IntMin, desc.IntMax))
			}
		}
	case SettingFloat:
		f, ok := asFloat(s.Value)
		if !ok {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name, "expected a float value")
		}
		if desc.HasFloatRange {
			tag := fmt.Sprintf("min=%g,max=%g", desc.FloatMin, desc.FloatMax)
			if err := validate.Var(f, tag); err != nil {
				return diagnostics.NewConstraintViolationError("setting:"+desc.Name,
					fmt.Sprintf("value %g out of range [%g,%g]", f, desc.FloatMin, desc.FloatMax))
			}
		}
	case SettingString, SettingPath, SettingFilePath:
		if _, ok := s.Value.(string); !ok {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name, "expected a string value")
		}
	case SettingEnum:
		v, ok := s.Value.(string)
		if !ok {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name, "expected a string enum value")
		}
		enum, ok := enums[desc.EnumName]
		if !ok {
			return diagnostics.NewUnresolvedReferenceError("enum", desc.EnumName)
		}
		tag := "oneof=" + strings.Join(enum.Values, " ")
		if err := validate.Var(v, tag); err != nil {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name,
				fmt.Sprintf("value %q is not one of %v", v, enum.Values))
		}
	case SettingEnumSelection:
		values, ok := s.Value.([]string)
		if !ok {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name, "expected a string slice")
		}
		enum, ok := enums[desc.EnumName]
		if !ok {
			return diagnostics.NewUnresolvedReferenceError("enum", desc.EnumName)
		}
		if desc.AtLeastOneRequired && len(values) == 0 {
			return diagnostics.NewConstraintViolationError("setting:"+desc.Name, "at least one value is required")
		}
		tag := "oneof=" + strings.Join(enum.Values, " ")
		for _, v := range values {
			if err := validate.Var(v, tag); err != nil {
				return diagnostics.NewConstraintViolationError("setting:"+desc.Name,
					fmt.Sprintf("value %q is not one of %v", v, enum.Values))
			}
		}
	}
	return nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
