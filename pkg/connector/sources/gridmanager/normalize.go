package gridmanager

import (
	"fmt"
	"sort"

	"github.com/ajitpratap0/gridfeed/pkg/errors"
	jsonpool "github.com/ajitpratap0/gridfeed/pkg/json"
)

const (
	fieldExtAttrs          = "extattrs"
	fieldOptions           = "options"
	fieldValue             = "value"
	fieldInheritanceSource = "inheritance_source"
	fieldName              = "name"

	unknownOption = "unknown"
)

// Normalize flattens the extensible attributes and DHCP options of a raw
// network record. It returns a new record and never modifies raw.
//
// Each extattrs entry {"value": v, "inheritance_source": {sfx: w}} becomes
// key: v plus key+sfx: w. Attributes and suffixes are applied in sorted
// order, so when two synthetic keys collide ("a"+"bc" and "ab"+"c") the
// later one in that order wins, and any original attribute of the same name
// wins over both. The options list becomes a map keyed by each
// option's name ("unknown" when absent) holding the option's other fields.
// Records without extattrs or options keep those sections absent.
func Normalize(raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	if attrs, ok := raw[fieldExtAttrs]; ok {
		flat, err := flattenExtAttrs(attrs)
		if err != nil {
			return nil, err
		}
		out[fieldExtAttrs] = flat
	}

	if opts, ok := raw[fieldOptions]; ok {
		keyed, err := keyOptions(opts)
		if err != nil {
			return nil, err
		}
		out[fieldOptions] = keyed
	}

	return out, nil
}

func flattenExtAttrs(v interface{}) (map[string]interface{}, error) {
	attrs, ok := v.(map[string]interface{})
	if !ok {
		return nil, malformed("extattrs is %s, want object", typeName(v))
	}

	keys := sortedKeys(attrs)
	flat := make(map[string]interface{}, len(attrs))
	// Synthetic keys go in first so an attribute of the same name overwrites them.
	for _, key := range keys {
		entry := attrs[key]
		e, ok := entry.(map[string]interface{})
		if !ok {
			return nil, malformed("extattrs[%q] is %s, want object", key, typeName(entry)).
				WithDetail("attribute", key)
		}
		src, present := e[fieldInheritanceSource]
		if !present || src == nil {
			continue
		}
		inherited, ok := src.(map[string]interface{})
		if !ok {
			return nil, malformed("extattrs[%q].inheritance_source is %s, want object", key, typeName(src)).
				WithDetail("attribute", key)
		}
		for _, suffix := range sortedKeys(inherited) {
			flat[key+suffix] = inherited[suffix]
		}
	}

	for _, key := range keys {
		e := attrs[key].(map[string]interface{})
		value, ok := e[fieldValue]
		if !ok {
			return nil, malformed("extattrs[%q] has no value", key).WithDetail("attribute", key)
		}
		flat[key] = value
	}
	return flat, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyOptions(v interface{}) (map[string]interface{}, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, malformed("options is %s, want array", typeName(v))
	}

	keyed := make(map[string]interface{}, len(list))
	for i, item := range list {
		opt, ok := item.(map[string]interface{})
		if !ok {
			return nil, malformed("options[%d] is %s, want object", i, typeName(item))
		}

		key := unknownOption
		rest := make(map[string]interface{}, len(opt))
		for k, val := range opt {
			if k == fieldName {
				key = optionKey(val)
				continue
			}
			rest[k] = val
		}
		keyed[key] = rest
	}
	return keyed, nil
}

func optionKey(name interface{}) string {
	switch n := name.(type) {
	case string:
		return n
	case nil:
		return "null"
	default:
		return fmt.Sprint(n)
	}
}

// EncodeCompact encodes a normalized record as compact JSON. Object keys are
// sorted at every level, so the output does not keep the key order of the
// WAPI response; consumers must not rely on field position.
func EncodeCompact(record map[string]interface{}) ([]byte, error) {
	data, err := jsonpool.MarshalCompact(record)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode record")
	}
	return data, nil
}

func malformed(format string, args ...interface{}) *errors.Error {
	return errors.Newf(errors.ErrorTypeMalformedResponse, format, args...)
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case jsonpool.Number, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
