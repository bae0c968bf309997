package model

import (
	"reflect"

	"github.com/kubusdb/kubus/pkg/validation"
)

// Document holds the fields every stored document carries. Concrete models
// embed it:
//
//	type Cat struct {
//		model.Document
//		Name string `json:"name"`
//	}
type Document struct {
	ID   string `json:"_id,omitempty"`
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type,omitempty"`

	rules validation.Rules
	state string
}

// Model is implemented by every struct embedding Document, through a pointer.
type Model interface {
	document() *Document
}

// DocTyper overrides the type discriminator, which defaults to the Go type
// name of the model.
type DocTyper interface {
	DocType() string
}

func (d *Document) document() *Document {
	return d
}

// Persisted reports whether the document has been written at least once.
func (d *Document) Persisted() bool {
	return d.Rev != ""
}

// State returns the lifecycle state: StateNew, StatePersisted or StateDeleted.
func (d *Document) State() string {
	if d.state != "" {
		return d.state
	}
	if d.Rev != "" {
		return StatePersisted
	}
	return StateNew
}

// Rules returns a copy of the validation rules of this instance.
func (d *Document) Rules() validation.Rules {
	if d.rules == nil {
		return defaultRules()
	}
	return d.rules.Clone()
}

// SetValidation merges rules into the instance rules. Fields not named in
// rules keep their constraints.
func (d *Document) SetValidation(rules validation.Rules) {
	d.rules = d.Rules().Merge(rules)
}

func defaultRules() validation.Rules {
	return validation.Rules{
		"_id":  validation.Required,
		"_rev": validation.Optional,
	}
}

// TypeOf returns the type discriminator stored with m.
func TypeOf(m Model) string {
	if t, ok := m.(DocTyper); ok {
		return t.DocType()
	}
	rt := reflect.TypeOf(m)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt.Name()
}
