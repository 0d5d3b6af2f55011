package configutil

import (
	"errors"
	"sort"
	"strings"
)

// Schema names the keys a vendor settings map may carry. Required keys
// must be present and non-empty; anything outside Required+Optional is
// rejected unless AllowUnknown is set.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings checks a settings map against a schema before it is
// decoded. Key matching is case/underscore/hyphen insensitive, same as
// DecodeSettings.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
	}
	known := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for k := range required {
		known[k] = struct{}{}
	}
	for _, k := range schema.Optional {
		known[normalizeKey(k)] = struct{}{}
	}

	var missing, unknown []string
	for k, v := range input {
		nk := normalizeKey(k)
		if _, ok := known[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
		if name, ok := required[nk]; ok {
			if blank(v) {
				missing = append(missing, name)
			}
			delete(required, nk)
		}
	}
	for _, name := range required {
		missing = append(missing, name)
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
