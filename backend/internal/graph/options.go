package graph

// UniqueKeys lists, per label, the properties besides id that no two nodes may share.
type UniqueKeys map[string][]string

// Option configures an embedded store.
type Option func(*options)

type options struct {
	unique UniqueKeys
}

// WithUniqueKeys makes the store reject Create and Set calls that would give two nodes
// of a label the same value for one of its unique keys. Stores also index those keys
// for Merge.
func WithUniqueKeys(unique UniqueKeys) Option {
	return func(o *options) {
		o.unique = unique
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
