package validation

// Constraint describes what a single field must satisfy.
type Constraint struct {
	// Required rejects nil, empty strings, empty lists and empty maps.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
	// Tag is a validator expression such as "email", "min=3,max=20",
	// "oneof=cat dog" or "uuid4". It is only checked on non-blank values.
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`
	// Message replaces the generated messages for this field.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

var (
	Required = Constraint{Required: true}
	Optional = Constraint{}
)

// Rules maps JSON field names, or dotted paths into nested objects,
// to their constraints.
type Rules map[string]Constraint

// Clone returns a copy of r that is never nil.
func (r Rules) Clone() Rules {
	out := make(Rules, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge layers other on top of r. Fields only present in r keep their
// constraints.
func (r Rules) Merge(other Rules) Rules {
	out := r.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}
