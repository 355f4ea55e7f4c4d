package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/jack2012aa/farm-iot/errors"
)

const (
	// maxSettingsSize caps any embedded settings document.
	maxSettingsSize = 1 << 20
	// maxSettingsDepth caps JSON nesting in settings documents.
	maxSettingsDepth = 16
)

// Validatable is implemented by config structs that can self-validate.
type Validatable interface {
	Validate() error
}

// SafeUnmarshal decodes raw JSON into target, rejecting unknown fields, and
// runs the target's Validate if it implements Validatable. Empty input
// leaves the target at its defaults, which are still validated. Factories
// use this to decode their kind-specific settings.
func SafeUnmarshal(raw json.RawMessage, target any) error {
	if len(raw) > maxSettingsSize {
		return errors.WrapInvalid(
			fmt.Errorf("document size %d exceeds maximum %d", len(raw), maxSettingsSize),
			"config", "SafeUnmarshal", "size check")
	}

	if t := reflect.TypeOf(target); t == nil || t.Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"config", "SafeUnmarshal", "target check")
	}

	if len(raw) > 0 {
		if err := validateDepth(raw); err != nil {
			return errors.Wrap(err, "config", "SafeUnmarshal", "structure check")
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return errors.WrapInvalid(err, "config", "SafeUnmarshal", "JSON decoding")
		}
	}

	if v, ok := target.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return errors.WrapInvalid(err, "config", "SafeUnmarshal", "validation")
		}
	}

	return nil
}

// validateDepth scans raw JSON for excessive nesting and unbalanced
// brackets without building the value tree.
func validateDepth(data []byte) error {
	depth := 0
	inString := false
	escaped := false

	for _, b := range data {
		if escaped {
			escaped = false
			continue
		}
		if b == '\\' && inString {
			escaped = true
			continue
		}
		if b == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch b {
		case '{', '[':
			depth++
			if depth > maxSettingsDepth {
				return errors.WrapInvalid(
					fmt.Errorf("nesting depth exceeds maximum %d", maxSettingsDepth),
					"config", "validateDepth", "depth check")
			}
		case '}', ']':
			depth--
			if depth < 0 {
				return errors.WrapInvalid(
					fmt.Errorf("unbalanced brackets"),
					"config", "validateDepth", "bracket check")
			}
		}
	}

	if depth != 0 {
		return errors.WrapInvalid(
			fmt.Errorf("unclosed brackets (depth %d)", depth),
			"config", "validateDepth", "bracket check")
	}
	return nil
}
