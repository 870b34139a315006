package pipeline

// Inputs is the keyword payload produced by a transition function.
type Inputs map[string]any

// Has reports whether key is present.
func (in Inputs) Has(key string) bool {
	_, ok := in[key]
	return ok
}

// StringValue returns the string at key.
func (in Inputs) StringValue(key string) (string, bool) {
	return InputAs[string](in, key)
}

// Int returns the integer at key. float64 values (decoded JSON) are accepted.
func (in Inputs) Int(key string) (int, bool) {
	switch v := in[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

// Merge returns a new Inputs holding in overlaid with other.
func (in Inputs) Merge(other Inputs) Inputs {
	out := make(Inputs, len(in)+len(other))
	for k, v := range in {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// InputAs returns the value at key asserted to T.
func InputAs[T any](in Inputs, key string) (T, bool) {
	v, ok := in[key].(T)
	return v, ok
}
