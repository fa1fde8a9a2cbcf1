package drift

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"docdrift/internal/errors"
)

// httpMethods in the order operations are emitted for one path.
var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// LoadSpec reads an OpenAPI 3.x or Swagger 2.0 document (YAML or JSON), or a
// native {version, endpoints} document.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec decodes a spec document. JSON is accepted as YAML.
func ParseSpec(data []byte) (*Spec, error) {
	var probe struct {
		OpenAPI string `yaml:"openapi"`
		Swagger string `yaml:"swagger"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, errors.New(errors.MalformedSpecOrDoc, "spec is not valid YAML or JSON", err)
	}

	if probe.OpenAPI == "" && probe.Swagger == "" {
		var spec Spec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, errors.New(errors.MalformedSpecOrDoc, "spec does not match the native format", err)
		}
		return &spec, nil
	}
	if probe.OpenAPI != "" && !strings.HasPrefix(probe.OpenAPI, "3.") {
		return nil, errors.New(errors.MalformedSpecOrDoc, "unsupported OpenAPI version "+probe.OpenAPI, nil)
	}
	if probe.Swagger != "" && probe.Swagger != "2.0" {
		return nil, errors.New(errors.MalformedSpecOrDoc, "unsupported Swagger version "+probe.Swagger, nil)
	}

	var doc oasDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.MalformedSpecOrDoc, "malformed OpenAPI document", err)
	}
	return doc.spec(), nil
}

type oasDocument struct {
	Info struct {
		Title   string `yaml:"title"`
		Version string `yaml:"version"`
	} `yaml:"info"`
	Paths       orderedMap[oasPathItem] `yaml:"paths"`
	Parameters  map[string]oasParam     `yaml:"parameters"` // swagger 2.0
	Definitions map[string]*oasSchema   `yaml:"definitions"`
	Components  struct {
		Parameters    map[string]oasParam       `yaml:"parameters"`
		Schemas       map[string]*oasSchema     `yaml:"schemas"`
		RequestBodies map[string]oasRequestBody `yaml:"requestBodies"`
	} `yaml:"components"`
}

type oasPathItem struct {
	Parameters []oasParam               `yaml:"parameters"`
	Operations map[string]*oasOperation `yaml:"-"`
}

// UnmarshalYAML collects the operations of a path item keyed by lower-case method.
func (p *oasPathItem) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.Operations = map[string]*oasOperation{}
	for key, node := range raw {
		k := strings.ToLower(key)
		if k == "parameters" {
			if err := node.Decode(&p.Parameters); err != nil {
				return err
			}
			continue
		}
		for _, m := range httpMethods {
			if k == m {
				var op oasOperation
				if err := node.Decode(&op); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
				p.Operations[k] = &op
			}
		}
	}
	return nil
}

type oasOperation struct {
	Parameters  []oasParam      `yaml:"parameters"`
	RequestBody *oasRequestBody `yaml:"requestBody"`
}

type oasParam struct {
	Ref         string     `yaml:"$ref"`
	Name        string     `yaml:"name"`
	In          string     `yaml:"in"`
	Required    bool       `yaml:"required"`
	Description string     `yaml:"description"`
	Type        string     `yaml:"type"` // swagger 2.0
	Schema      *oasSchema `yaml:"schema"`
}

type oasRequestBody struct {
	Ref      string                   `yaml:"$ref"`
	Required bool                     `yaml:"required"`
	Content  orderedMap[oasMediaType] `yaml:"content"`
}

type oasMediaType struct {
	Schema *oasSchema `yaml:"schema"`
}

type oasSchema struct {
	Ref         string                 `yaml:"$ref"`
	Type        string                 `yaml:"type"`
	Format      string                 `yaml:"format"`
	Description string                 `yaml:"description"`
	Required    []string               `yaml:"required"`
	Properties  orderedMap[*oasSchema] `yaml:"properties"`
}

// orderedMap decodes a YAML mapping preserving key order.
type orderedMap[V any] struct {
	Keys   []string
	Values map[string]V
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *orderedMap[V]) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	m.Values = make(map[string]V, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		var v V
		if err := value.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, dup := m.Values[key]; !dup {
			m.Keys = append(m.Keys, key)
		}
		m.Values[key] = v
	}
	return nil
}

func (d *oasDocument) spec() *Spec {
	spec := &Spec{Title: d.Info.Title, Version: d.Info.Version}
	for _, path := range d.Paths.Keys {
		item := d.Paths.Values[path]
		for _, method := range httpMethods {
			op, ok := item.Operations[method]
			if !ok {
				continue
			}
			ep := Endpoint{Method: strings.ToUpper(method), Path: path}
			ep.Params = d.params(item.Parameters, op)
			spec.Endpoints = append(spec.Endpoints, ep)
		}
	}
	return spec
}

// params merges path-level and operation-level parameters (operation wins)
// and flattens JSON request body properties into body parameters.
func (d *oasDocument) params(shared []oasParam, op *oasOperation) []Param {
	var out []Param
	index := map[string]int{}
	add := func(p Param) {
		k := strings.ToLower(p.In) + ":" + paramKey(p.Name)
		if i, ok := index[k]; ok {
			out[i] = p
			return
		}
		index[k] = len(out)
		out = append(out, p)
	}

	for _, group := range [][]oasParam{shared, op.Parameters} {
		for _, raw := range group {
			p := d.resolveParam(raw)
			if p.In == "body" && p.Schema != nil {
				for _, bp := range d.bodyParams(p.Schema) {
					add(bp)
				}
				continue
			}
			add(Param{
				Name:        p.Name,
				In:          p.In,
				Type:        d.paramType(p),
				Required:    p.Required || p.In == "path",
				Description: p.Description,
			})
		}
	}

	if body := d.resolveBody(op.RequestBody); body != nil {
		if schema := jsonSchema(body.Content); schema != nil {
			for _, bp := range d.bodyParams(schema) {
				add(bp)
			}
		}
	}
	return out
}

func (d *oasDocument) resolveParam(p oasParam) oasParam {
	if p.Ref == "" {
		return p
	}
	name := refName(p.Ref)
	if strings.HasPrefix(p.Ref, "#/components/parameters/") {
		if r, ok := d.Components.Parameters[name]; ok {
			return r
		}
	}
	if r, ok := d.Parameters[name]; ok {
		return r
	}
	return p
}

func (d *oasDocument) resolveBody(b *oasRequestBody) *oasRequestBody {
	if b == nil || b.Ref == "" {
		return b
	}
	if r, ok := d.Components.RequestBodies[refName(b.Ref)]; ok {
		return &r
	}
	return nil
}

func (d *oasDocument) resolveSchema(s *oasSchema) *oasSchema {
	for depth := 0; s != nil && s.Ref != "" && depth < 8; depth++ {
		name := refName(s.Ref)
		next, ok := d.Components.Schemas[name]
		if !ok {
			next, ok = d.Definitions[name]
		}
		if !ok {
			return s
		}
		s = next
	}
	return s
}

func (d *oasDocument) paramType(p oasParam) string {
	if p.Type != "" {
		return p.Type
	}
	if s := d.resolveSchema(p.Schema); s != nil {
		return s.Type
	}
	return ""
}

// bodyParams lists the top-level properties of an object schema.
func (d *oasDocument) bodyParams(schema *oasSchema) []Param {
	s := d.resolveSchema(schema)
	if s == nil {
		return nil
	}
	required := map[string]bool{}
	for _, r := range s.Required {
		required[r] = true
	}
	out := make([]Param, 0, len(s.Properties.Keys))
	for _, name := range s.Properties.Keys {
		prop := d.resolveSchema(s.Properties.Values[name])
		p := Param{Name: name, In: "body", Required: required[name]}
		if prop != nil {
			p.Type = prop.Type
			p.Description = prop.Description
		}
		out = append(out, p)
	}
	return out
}

// jsonSchema picks the JSON media type, or the first one declared.
func jsonSchema(content orderedMap[oasMediaType]) *oasSchema {
	if mt, ok := content.Values["application/json"]; ok {
		return mt.Schema
	}
	keys := append([]string(nil), content.Keys...)
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(k, "json") {
			return content.Values[k].Schema
		}
	}
	if len(content.Keys) > 0 {
		return content.Values[content.Keys[0]].Schema
	}
	return nil
}

func refName(ref string) string {
	return ref[strings.LastIndex(ref, "/")+1:]
}
