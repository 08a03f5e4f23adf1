// Package config loads a static YAML declaration of zones, application
// classes, and resources, and applies it to an engine.Engine. It is the
// typed-declaration analogue of the original's embedded Lua
// configuration host (config-lua.c's zone/class/resource tables),
// without reimplementing a scripting host: the engine consumes a single
// parsed document instead of evaluating scripts.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/arbiter/pkg/attribute"
	"github.com/cuemby/arbiter/pkg/engine"
	"github.com/cuemby/arbiter/pkg/registry"
)

// AttrDecl declares one typed attribute, either on the zone schema or on
// a resource definition.
type AttrDecl struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // string | int32 | uint32 | double
	Access  string `yaml:"access,omitempty"` // read | write | read-write, default read-write
	Default string `yaml:"default,omitempty"`
}

// ZoneDecl declares one zone instance.
type ZoneDecl struct {
	Name string `yaml:"name"`
}

// ClassDecl declares one application class.
type ClassDecl struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
	Modal    bool   `yaml:"modal,omitempty"`
	Share    bool   `yaml:"share,omitempty"`
	Order    string `yaml:"order,omitempty"` // fifo | lifo, default fifo
}

// ResourceDecl declares one resource definition.
type ResourceDecl struct {
	Name      string     `yaml:"name"`
	Shareable bool       `yaml:"shareable,omitempty"`
	Attrs     []AttrDecl `yaml:"attributes,omitempty"`
}

// Document is the top-level declaration: the shared zone attribute
// schema, then zones, classes, and resources.
type Document struct {
	ZoneAttributes []AttrDecl     `yaml:"zone_attributes,omitempty"`
	Zones          []ZoneDecl     `yaml:"zones"`
	Classes        []ClassDecl    `yaml:"classes"`
	Resources      []ResourceDecl `yaml:"resources"`
}

// Load parses a YAML document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &doc, nil
}

// Apply declares doc's zone attribute schema, zones, classes, and
// resources against eng, in that order (each later declaration may
// depend on an earlier one, matching the original's declare-then-use
// ordering).
func (doc *Document) Apply(eng *engine.Engine) error {
	zoneAttrs, err := attrDefs(doc.ZoneAttributes)
	if err != nil {
		return err
	}
	if err := eng.DefineZoneAttributes(zoneAttrs); err != nil {
		return fmt.Errorf("declaring zone attribute schema: %w", err)
	}

	for _, z := range doc.Zones {
		if _, err := eng.CreateZone(z.Name, nil); err != nil {
			return fmt.Errorf("creating zone %q: %w", z.Name, err)
		}
	}

	for _, c := range doc.Classes {
		order := registry.FIFO
		if c.Order == "lifo" {
			order = registry.LIFO
		}
		if _, err := eng.CreateClass(c.Name, c.Priority, c.Modal, c.Share, order); err != nil {
			return fmt.Errorf("creating class %q: %w", c.Name, err)
		}
	}

	for _, r := range doc.Resources {
		attrs, err := attrDefs(r.Attrs)
		if err != nil {
			return err
		}
		if _, err := eng.RegisterResource(r.Name, r.Shareable, false, attrs, nil, nil); err != nil {
			return fmt.Errorf("registering resource %q: %w", r.Name, err)
		}
	}

	return nil
}

func attrDefs(decls []AttrDecl) ([]attribute.Definition, error) {
	out := make([]attribute.Definition, len(decls))
	for i, d := range decls {
		typ, err := parseType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", d.Name, err)
		}
		def := attribute.Definition{
			Name:    d.Name,
			Type:    typ,
			Access:  parseAccess(d.Access),
			Default: attribute.Value{Type: typ},
		}
		if d.Default != "" {
			def.Default, err = parseDefault(typ, d.Default)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", d.Name, err)
			}
		}
		out[i] = def
	}
	return out, nil
}

func parseType(s string) (attribute.Type, error) {
	switch s {
	case "string", "":
		return attribute.TypeString, nil
	case "int32":
		return attribute.TypeInt32, nil
	case "uint32":
		return attribute.TypeUint32, nil
	case "double":
		return attribute.TypeDouble, nil
	default:
		return 0, fmt.Errorf("unknown attribute type %q", s)
	}
}

func parseAccess(s string) attribute.Access {
	switch s {
	case "read":
		return attribute.Read
	case "write":
		return attribute.Write
	default:
		return attribute.ReadWrite
	}
}

func parseDefault(t attribute.Type, s string) (attribute.Value, error) {
	switch t {
	case attribute.TypeString:
		return attribute.Value{Type: t, Str: s}, nil
	case attribute.TypeInt32:
		var v int32
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return attribute.Value{}, err
		}
		return attribute.Value{Type: t, I32: v}, nil
	case attribute.TypeUint32:
		var v uint32
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return attribute.Value{}, err
		}
		return attribute.Value{Type: t, U32: v}, nil
	case attribute.TypeDouble:
		var v float64
		if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
			return attribute.Value{}, err
		}
		return attribute.Value{Type: t, Dbl: v}, nil
	default:
		return attribute.Value{}, fmt.Errorf("unsupported attribute type")
	}
}
