// Package bootstrap holds the baseline schema every new site is seeded
// with. The schema is written in CUE and compiled at load time.
package bootstrap

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/infobase/internal/thing"
)

// DefaultAdminPassword is used for the seeded accounts when none is given.
const DefaultAdminPassword = "admin123"

//go:embed schema.cue
var schemaCUE []byte

// Property describes one property of a type.
type Property struct {
	Name         string `json:"name"`
	ExpectedType string `json:"expected_type"`
	Unique       bool   `json:"unique"`
}

// Type is a /type/* thing.
type Type struct {
	Key         string     `json:"key"`
	Kind        string     `json:"kind"`
	Description string     `json:"description,omitempty"`
	Properties  []Property `json:"properties"`
}

// Account is a seeded account. All seeded accounts share one password.
type Account struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayname"`
}

// Usergroup is a seeded /usergroup/* thing.
type Usergroup struct {
	Key         string   `json:"key"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
}

// Schema is the decoded baseline.
type Schema struct {
	Types      []Type      `json:"types"`
	Accounts   []Account   `json:"accounts"`
	Usergroups []Usergroup `json:"usergroups"`
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
	defaultErr    error
)

// Default returns the embedded baseline schema. It is compiled once.
func Default() (*Schema, error) {
	defaultOnce.Do(func() {
		defaultSchema, defaultErr = Parse("schema.cue", schemaCUE)
	})
	return defaultSchema, defaultErr
}

// Parse compiles CUE source into a Schema and checks its references.
func Parse(filename string, src []byte) (*Schema, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	var s Schema
	if err := v.Decode(&s); err != nil {
		return nil, formatCUEError(err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// check verifies that the schema refers only to things it defines.
// /type/type must come first since every other type is an instance of it.
func (s *Schema) check() error {
	if len(s.Types) == 0 || s.Types[0].Key != thing.TypeType {
		return &SchemaError{Field: "types", Message: "first type must be " + thing.TypeType}
	}

	types := make(map[string]bool, len(s.Types))
	for _, t := range s.Types {
		if types[t.Key] {
			return &SchemaError{Field: "types", Message: "duplicate type " + t.Key}
		}
		types[t.Key] = true
	}
	for _, t := range s.Types {
		for _, p := range t.Properties {
			if !types[p.ExpectedType] {
				return &SchemaError{Field: t.Key + "." + p.Name, Message: "undefined type " + p.ExpectedType}
			}
		}
	}
	for _, want := range []string{thing.TypeUser, thing.TypeUsergroup} {
		if !types[want] {
			return &SchemaError{Field: "types", Message: "missing required type " + want}
		}
	}

	users := make(map[string]bool, len(s.Accounts))
	for _, a := range s.Accounts {
		users["/user/"+a.Username] = true
	}
	for _, g := range s.Usergroups {
		for _, m := range g.Members {
			if !users[m] {
				return &SchemaError{Field: g.Key + ".members", Message: "unknown member " + m}
			}
		}
	}
	return nil
}

// TypeDocuments returns the save documents of every type, in schema order.
func (s *Schema) TypeDocuments() []thing.Data {
	docs := make([]thing.Data, 0, len(s.Types))
	for _, t := range s.Types {
		props := make([]any, 0, len(t.Properties))
		for _, p := range t.Properties {
			props = append(props, map[string]any{
				"name":          p.Name,
				"expected_type": thing.Ref(p.ExpectedType),
				"unique":        p.Unique,
			})
		}
		doc := thing.Data{
			"key":        t.Key,
			"type":       thing.Ref(thing.TypeType),
			"kind":       t.Kind,
			"properties": props,
		}
		if t.Description != "" {
			doc["description"] = t.Description
		}
		docs = append(docs, doc)
	}
	return docs
}

// UsergroupDocuments returns the save documents of every usergroup.
func (s *Schema) UsergroupDocuments() []thing.Data {
	docs := make([]thing.Data, 0, len(s.Usergroups))
	for _, g := range s.Usergroups {
		members := make([]any, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, thing.Ref(m))
		}
		doc := thing.Data{
			"key":     g.Key,
			"type":    thing.Ref(thing.TypeUsergroup),
			"members": members,
		}
		if g.Description != "" {
			doc["description"] = g.Description
		}
		docs = append(docs, doc)
	}
	return docs
}

// SchemaError reports an invalid baseline schema.
type SchemaError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &SchemaError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &SchemaError{Field: "cue", Message: first.Error()}
}
