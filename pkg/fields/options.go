package fields

type options struct {
	defaults   any
	pathFields map[string]string
	jsonOrPath map[string]bool
}

// Option adjusts how fields are listed and bound.
type Option func(*options)

// WithDefaults reads per-field defaults from an instance of the struct being
// reflected. Required fields keep Missing regardless so callers can tell
// "must be entered" apart from "defaults to zero".
func WithDefaults(instance any) Option {
	return func(o *options) { o.defaults = instance }
}

// WithPathFields marks wire names as paths when the struct carries no format
// tag, mapping each name to "dir-path" or "file-path".
func WithPathFields(formats map[string]string) Option {
	return func(o *options) {
		if o.pathFields == nil {
			o.pathFields = map[string]string{}
		}
		for name, format := range formats {
			o.pathFields[name] = format
		}
	}
}

// WithJSONOrPath marks wire names whose value is either inline JSON or a path
// to a JSON file, when the struct carries no kind tag.
func WithJSONOrPath(names ...string) Option {
	return func(o *options) {
		if o.jsonOrPath == nil {
			o.jsonOrPath = map[string]bool{}
		}
		for _, name := range names {
			o.jsonOrPath[name] = true
		}
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
