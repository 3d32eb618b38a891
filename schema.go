package recordbin

import (
	"fmt"
	"sort"
)

const (
	CollationDefault         = "default"
	CollationCaseInsensitive = "ci"
)

// Property is a schema-declared field of a class.
//
// GlobalID is the schema-wide numeric alias of the property name, or -1 when
// none has been assigned. LinkedType is the declared element type of
// collections (Any if not declared), LinkedClass the declared class of
// embedded values.
type Property struct {
	Name        string
	Type        Type
	LinkedType  Type
	LinkedClass string
	GlobalID    int
	Collation   string
}

type GlobalProperty struct {
	ID   int
	Name string
	Type Type
}

// Schema is the read-only metadata consulted by the codec.
type Schema interface {
	Property(class, field string) *Property
	GlobalProperty(id int) *GlobalProperty
}

// StaticSchema is an immutable in-memory Schema. Build one with
// NewSchemaBuilder.
type StaticSchema struct {
	classes map[string]map[string]*Property
	globals []*GlobalProperty
}

var _ Schema = (*StaticSchema)(nil)

func (s *StaticSchema) Property(class, field string) *Property {
	if s == nil {
		return nil
	}
	return s.classes[class][field]
}

func (s *StaticSchema) GlobalProperty(id int) *GlobalProperty {
	if s == nil || id < 0 || id >= len(s.globals) {
		return nil
	}
	return s.globals[id]
}

func (s *StaticSchema) ClassNames() []string {
	names := make([]string, 0, len(s.classes))
	for n := range s.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GlobalProperties returns all global properties ordered by id.
func (s *StaticSchema) GlobalProperties() []*GlobalProperty {
	return s.globals
}

// SchemaBuilder assigns global property ids in the order properties are
// declared. A property with the same name and type in several classes shares
// one global id.
type SchemaBuilder struct {
	classes map[string]map[string]*Property
	globals []*GlobalProperty
	byKey   map[globalKey]int
	err     error
}

type globalKey struct {
	name string
	typ  Type
}

func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{
		classes: make(map[string]map[string]*Property),
		byKey:   make(map[globalKey]int),
	}
}

// Class declares a class (if needed) and returns a builder for its properties.
func (b *SchemaBuilder) Class(name string) *ClassBuilder {
	if b.classes[name] == nil {
		b.classes[name] = make(map[string]*Property)
	}
	return &ClassBuilder{b: b, name: name}
}

func (b *SchemaBuilder) Build() (*StaticSchema, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &StaticSchema{classes: b.classes, globals: b.globals}, nil
}

func (b *SchemaBuilder) MustBuild() *StaticSchema {
	return must(b.Build())
}

type ClassBuilder struct {
	b    *SchemaBuilder
	name string
}

// Property declares a property with a global id.
func (cb *ClassBuilder) Property(name string, t Type) *PropertyBuilder {
	return cb.add(&Property{Name: name, Type: t, LinkedType: Any, GlobalID: -1, Collation: CollationDefault}, true)
}

// LocalProperty declares a property without a global id; such fields are
// always written with inline names.
func (cb *ClassBuilder) LocalProperty(name string, t Type) *PropertyBuilder {
	return cb.add(&Property{Name: name, Type: t, LinkedType: Any, GlobalID: -1, Collation: CollationDefault}, false)
}

func (cb *ClassBuilder) add(p *Property, global bool) *PropertyBuilder {
	b := cb.b
	props := b.classes[cb.name]
	if props[p.Name] != nil {
		b.err = fmt.Errorf("%s.%s: duplicate property", cb.name, p.Name)
	}
	if !p.Type.Valid() {
		b.err = fmt.Errorf("%s.%s: invalid type %d", cb.name, p.Name, int(p.Type))
	}
	if global {
		key := globalKey{p.Name, p.Type}
		id, ok := b.byKey[key]
		if !ok {
			id = len(b.globals)
			b.globals = append(b.globals, &GlobalProperty{ID: id, Name: p.Name, Type: p.Type})
			b.byKey[key] = id
		}
		p.GlobalID = id
	}
	props[p.Name] = p
	return &PropertyBuilder{cb: cb, p: p}
}

type PropertyBuilder struct {
	cb *ClassBuilder
	p  *Property
}

func (pb *PropertyBuilder) Linked(t Type) *PropertyBuilder {
	pb.p.LinkedType = t
	return pb
}

func (pb *PropertyBuilder) LinkedClass(class string) *PropertyBuilder {
	pb.p.LinkedClass = class
	return pb
}

func (pb *PropertyBuilder) Collate(name string) *PropertyBuilder {
	pb.p.Collation = name
	return pb
}

// Property continues declaring properties of the same class.
func (pb *PropertyBuilder) Property(name string, t Type) *PropertyBuilder {
	return pb.cb.Property(name, t)
}

func (pb *PropertyBuilder) LocalProperty(name string, t Type) *PropertyBuilder {
	return pb.cb.LocalProperty(name, t)
}
