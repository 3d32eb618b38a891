// Package schemafile loads class definitions and codec settings from YAML.
//
//	timezone: Europe/Oslo
//	classes:
//	  - name: Person
//	    properties:
//	      - {name: name, type: STRING, collate: ci}
//	      - {name: tags, type: EMBEDDEDLIST, linked_type: STRING}
//	      - {name: nick, type: STRING, local: true}
//
// Global property ids are assigned in file order.
package schemafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/recordbin"
)

type File struct {
	TimeZone       string  `yaml:"timezone"`
	DateFormat     string  `yaml:"date_format"`
	DateTimeFormat string  `yaml:"datetime_format"`
	Classes        []Class `yaml:"classes"`
}

type Class struct {
	Name       string     `yaml:"name"`
	Properties []Property `yaml:"properties"`
}

type Property struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	LinkedType  string `yaml:"linked_type"`
	LinkedClass string `yaml:"linked_class"`
	Collate     string `yaml:"collate"`
	Local       bool   `yaml:"local"`
}

// Parse decodes a schema file. Unknown keys are errors.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) Schema() (*recordbin.StaticSchema, error) {
	b := recordbin.NewSchemaBuilder()
	for _, c := range f.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("class without a name")
		}
		cb := b.Class(c.Name)
		for _, p := range c.Properties {
			t, ok := recordbin.ParseType(p.Type)
			if !ok {
				return nil, fmt.Errorf("%s.%s: unknown type %q", c.Name, p.Name, p.Type)
			}
			var pb *recordbin.PropertyBuilder
			if p.Local {
				pb = cb.LocalProperty(p.Name, t)
			} else {
				pb = cb.Property(p.Name, t)
			}
			if p.LinkedType != "" {
				lt, ok := recordbin.ParseType(p.LinkedType)
				if !ok {
					return nil, fmt.Errorf("%s.%s: unknown linked type %q", c.Name, p.Name, p.LinkedType)
				}
				pb.Linked(lt)
			}
			if p.LinkedClass != "" {
				pb.LinkedClass(p.LinkedClass)
			}
			if p.Collate != "" {
				pb.Collate(p.Collate)
			}
		}
	}
	return b.Build()
}

// CodecOptions returns codec options carrying the schema and the settings of
// the file.
func (f *File) CodecOptions() (recordbin.Options, error) {
	s, err := f.Schema()
	if err != nil {
		return recordbin.Options{}, err
	}
	o := recordbin.Options{
		Schema:         s,
		DateFormat:     f.DateFormat,
		DateTimeFormat: f.DateTimeFormat,
	}
	if f.TimeZone != "" {
		o.TimeZone, err = time.LoadLocation(f.TimeZone)
		if err != nil {
			return recordbin.Options{}, fmt.Errorf("timezone: %w", err)
		}
	}
	return o, nil
}
