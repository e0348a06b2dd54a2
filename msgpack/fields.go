package msgpack

import "math"

// Field describes one map entry to look up: its name, whether it must
// be present, and typed output slots. A present value is stored into
// every slot its type can satisfy; a value that satisfies none of the
// requested slots is reported as invalid.
type Field struct {
	Name     string
	Required bool

	Any   *any
	Map   *map[string]any
	Array *[]any
	Int   *int64
	Uint  *uint64
	F     *float64
	B     *bool
	Str   *string
}

// FindObj returns the value stored under key, if any.
func FindObj(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// FindFields populates the requested slots from m and returns the name
// of the first field that is required-and-missing or present but
// type-incompatible with every slot, or "" on success.
func FindFields(m map[string]any, fields []Field) string {
	for i := range fields {
		f := &fields[i]
		v, ok := m[f.Name]
		if !ok {
			if f.Required {
				return f.Name
			}
			continue
		}

		used := false
		if f.Any != nil {
			*f.Any = v
			used = true
		}

		switch x := v.(type) {
		case map[string]any:
			if f.Map != nil {
				*f.Map = x
				used = true
			}
		case []any:
			if f.Array != nil {
				*f.Array = x
				used = true
			}
		case bool:
			if f.B != nil {
				*f.B = x
				used = true
			}
		case string:
			if f.Str != nil {
				*f.Str = x
				used = true
			}
		case []byte:
			if f.Str != nil {
				*f.Str = string(x)
				used = true
			}
		case float64:
			if f.F != nil {
				*f.F = x
				used = true
			}
		case float32:
			if f.F != nil {
				*f.F = float64(x)
				used = true
			}
		default:
			if i64, iok := asInt(v); iok {
				if f.Uint != nil && i64 >= 0 {
					*f.Uint = uint64(i64)
					used = true
				}
				if f.Int != nil {
					*f.Int = i64
					used = true
				}
			} else if u64, uok := asUint(v); uok {
				if f.Uint != nil {
					*f.Uint = u64
					used = true
				}
				if f.Int != nil && u64 <= math.MaxInt64 {
					*f.Int = int64(u64)
					used = true
				}
			}
		}

		if !used {
			return f.Name
		}
	}
	return ""
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func asUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	}
	return 0, false
}
