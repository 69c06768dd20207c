package tlspolicy

// Option is a single engine option. Keys and value shapes are owned by the
// TLS engine the decision is handed to; the resolver treats them as opaque.
type Option struct {
	Key   string
	Value any
}

// Options is an ordered association list of engine options. It deliberately
// is not a map: position carries the precedence contract, and duplicate keys
// are preserved. Lookups resolve to the first occurrence.
type Options []Option

// Opt constructs a single option entry.
func Opt(key string, value any) Option {
	return Option{Key: key, Value: value}
}

// Get returns the value of the first occurrence of key.
func (o Options) Get(key string) (any, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Value, true
		}
	}
	return nil, false
}

// Has reports whether key appears anywhere in the list.
func (o Options) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// GetString returns the first occurrence of key as a string.
func (o Options) GetString(key string) (string, bool) {
	value, ok := o.Get(key)
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}

// Merge concatenates the receiver with base, receiver entries first. Entries
// from the receiver therefore win first-occurrence lookups over base entries
// with the same key, while every entry of both lists is retained in order.
func (o Options) Merge(base Options) Options {
	if len(o) == 0 && len(base) == 0 {
		return nil
	}
	merged := make(Options, 0, len(o)+len(base))
	merged = append(merged, o...)
	merged = append(merged, base...)
	return merged
}

// Clone returns a shallow copy of the list. Values are not copied; option
// values are treated as immutable once constructed.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	return append(Options(nil), o...)
}
