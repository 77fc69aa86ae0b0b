package core

import (
	"fmt"
	"strconv"
	"strings"
)

// MetadataIndexingMode selects the default searchability of metadata fields.
type MetadataIndexingMode int

const (
	// DefaultToSearchable indexes every field except those listed.
	DefaultToSearchable MetadataIndexingMode = iota + 1
	// DefaultToUnsearchable indexes only the listed fields.
	DefaultToUnsearchable
)

// MetadataPolicy decides which metadata fields are indexed and therefore
// usable in filters. The zero value indexes everything.
type MetadataPolicy struct {
	mode   MetadataIndexingMode
	fields map[string]struct{}
}

// AllIndexed returns a policy that indexes every metadata field.
func AllIndexed() MetadataPolicy {
	return MetadataPolicy{mode: DefaultToSearchable}
}

// NoneIndexed returns a policy that indexes no metadata fields.
func NoneIndexed() MetadataPolicy {
	return MetadataPolicy{mode: DefaultToUnsearchable}
}

// Allowlist returns a policy that indexes only the given fields.
func Allowlist(fields ...string) MetadataPolicy {
	return MetadataPolicy{mode: DefaultToUnsearchable, fields: fieldSet(fields)}
}

// Denylist returns a policy that indexes every field except the given ones.
func Denylist(fields ...string) MetadataPolicy {
	return MetadataPolicy{mode: DefaultToSearchable, fields: fieldSet(fields)}
}

func fieldSet(fields []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// ParseMetadataPolicy builds a policy from a mode specification string.
// Accepted modes: "all", "none", "allowlist" (aliases "allow", "allow_list",
// "default_to_unsearchable") and "denylist" (aliases "deny", "deny_list",
// "default_to_searchable"). The field list applies only to the list modes.
func ParseMetadataPolicy(mode string, fields ...string) (MetadataPolicy, error) {
	switch strings.ToLower(mode) {
	case "all":
		return AllIndexed(), nil
	case "none":
		return NoneIndexed(), nil
	case "allowlist", "allow", "allow_list", "default_to_unsearchable":
		return Allowlist(fields...), nil
	case "denylist", "deny", "deny_list", "default_to_searchable":
		return Denylist(fields...), nil
	default:
		return MetadataPolicy{}, fmt.Errorf("%w: unsupported metadata indexing mode %q", ErrInvalidArgument, mode)
	}
}

// IsIndexed reports whether the given metadata field is indexed under the
// policy.
func (p MetadataPolicy) IsIndexed(field string) bool {
	_, listed := p.fields[field]
	switch p.mode {
	case DefaultToUnsearchable:
		return listed
	default:
		return !listed
	}
}

// IndexedValues projects the indexed subset of metadata into coerced string
// values suitable for equality filtering.
func (p MetadataPolicy) IndexedValues(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	indexed := make(map[string]string)
	for key, value := range metadata {
		if p.IsIndexed(key) {
			indexed[key] = CoerceString(value)
		}
	}
	if len(indexed) == 0 {
		return nil
	}
	return indexed
}

// CoerceFilter validates a metadata filter against the policy and coerces
// its values for storage-level equality matching. A filter referencing a
// non-indexed field is rejected with ErrInvalidArgument.
func (p MetadataPolicy) CoerceFilter(filter map[string]any) (map[string]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	coerced := make(map[string]string, len(filter))
	for key, value := range filter {
		if !p.IsIndexed(key) {
			return nil, fmt.Errorf("%w: metadata field %q is not indexed and cannot be used in filters", ErrInvalidArgument, key)
		}
		coerced[key] = CoerceString(value)
	}
	return coerced, nil
}

// CoerceString normalizes a scalar metadata value to its indexed string
// form. Integers and floats coerce identically so that 1 and 1.0 match the
// same stored value.
func CoerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		// bool must be handled before the numeric cases
		return strconv.FormatBool(v)
	case int:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case int32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case int64:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case uint64:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}
