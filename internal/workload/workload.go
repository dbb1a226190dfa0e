// Package workload reads query workloads: YAML files listing named
// requests, validated against an embedded CUE schema.
//
// Filter values beginning with "$" are placeholders ("$country",
// "$currency") bound once per run.
package workload

import (
	"bytes"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
)

//go:embed schema.cue
var schemaCUE string

//go:embed default.yaml
var defaultYAML []byte

// Workload is a named list of queries.
type Workload struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	PageSize    int     `yaml:"page_size,omitempty" json:"page_size,omitempty"`
	Queries     []Query `yaml:"queries" json:"queries"`
}

// Query is one workload entry. Filter values are strings, integers or
// placeholders.
type Query struct {
	Name     string         `yaml:"name" json:"name"`
	Kind     string         `yaml:"kind" json:"kind"`
	Store    string         `yaml:"store" json:"store"`
	Filters  map[string]any `yaml:"filters,omitempty" json:"filters,omitempty"`
	GroupBy  string         `yaml:"group_by,omitempty" json:"group_by,omitempty"`
	Join     *query.Join    `yaml:"join,omitempty" json:"join,omitempty"`
	Project  []string       `yaml:"project,omitempty" json:"project,omitempty"`
	PageSize int            `yaml:"page_size,omitempty" json:"page_size,omitempty"`
}

// Params binds placeholder names (without the "$") to values.
type Params map[string]ir.IRValue

// Default returns the built-in workload of the six client queries.
func Default() *Workload {
	w, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("workload: embedded default is invalid: %v", err))
	}
	return w
}

// Load reads and parses a workload file.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes a workload document. Unknown keys are rejected, then the
// document is checked against the CUE schema and for duplicate names.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, fmt.Errorf("invalid workload: %w", err)
	}

	seen := make(map[string]bool, len(w.Queries))
	for _, q := range w.Queries {
		if seen[q.Name] {
			return nil, fmt.Errorf("invalid workload: duplicate query name %q", q.Name)
		}
		seen[q.Name] = true
	}
	return &w, nil
}

// A cue.Context is not safe for concurrent use.
var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func workloadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile workload schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Workload"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("workload schema has no #Workload definition")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// validateSchema unifies the decoded document with #Workload.
func validateSchema(doc any) error {
	ctx, def, err := workloadSchema()
	if err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// Placeholders returns the placeholder names the workload uses, sorted.
func (w *Workload) Placeholders() []string {
	seen := map[string]bool{}
	var out []string
	for _, q := range w.Queries {
		for _, v := range q.Filters {
			if name, ok := placeholder(v); ok && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	slices.Sort(out)
	return out
}

// PlaceholderType returns the declared type of the first field $name
// filters that is not a reference. References accept both strings and
// integers, so they say nothing about the value's form.
func (w *Workload) PlaceholderType(name string, schemas map[string]entity.Schema) (entity.Type, bool) {
	for _, q := range w.Queries {
		schema, ok := schemas[q.Store]
		if !ok {
			continue
		}
		for _, field := range slices.Sorted(maps.Keys(q.Filters)) {
			if p, ok := placeholder(q.Filters[field]); !ok || p != name {
				continue
			}
			if f, ok := schema.Lookup(field); ok && f.Type != entity.TypeRef {
				return f.Type, true
			}
		}
	}
	return 0, false
}

// RebindJoins points every join on store that matches foreign field from
// at field to instead. It returns the number of joins changed.
func (w *Workload) RebindJoins(store, from, to string) int {
	n := 0
	for i, q := range w.Queries {
		if q.Join == nil || q.Join.Store != store || q.Join.ForeignField != from || from == to {
			continue
		}
		j := *q.Join
		j.ForeignField = to
		w.Queries[i].Join = &j
		n++
	}
	return n
}

func placeholder(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") || len(s) == 1 {
		return "", false
	}
	return s[1:], true
}

// Requests binds placeholders and converts every query to a request.
// The workload page size applies to queries that set none.
func (w *Workload) Requests(params Params) ([]query.Named, error) {
	out := make([]query.Named, 0, len(w.Queries))
	for _, q := range w.Queries {
		req, err := q.request(params)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, err)
		}
		if req.PageSize == 0 {
			req.PageSize = w.PageSize
		}
		out = append(out, query.Named{Name: q.Name, Request: req})
	}
	return out, nil
}

func (q Query) request(params Params) (query.Request, error) {
	kind, err := query.ParseKind(q.Kind)
	if err != nil {
		return query.Request{}, err
	}
	req := query.Request{
		Kind:     kind,
		Store:    q.Store,
		GroupBy:  q.GroupBy,
		Join:     q.Join,
		Project:  q.Project,
		PageSize: q.PageSize,
	}
	if len(q.Filters) > 0 {
		req.Filters = make(ir.IRObject, len(q.Filters))
		for field, raw := range q.Filters {
			if name, ok := placeholder(raw); ok {
				v, bound := params[name]
				if !bound {
					return query.Request{}, fmt.Errorf("filter %s: placeholder $%s is not bound", field, name)
				}
				req.Filters[field] = v
				continue
			}
			v, err := ir.FromAny(raw)
			if err != nil {
				return query.Request{}, fmt.Errorf("filter %s: %w", field, err)
			}
			req.Filters[field] = v
		}
	}
	return req, req.Validate()
}

// Fingerprint identifies the workload's queries after binding, so two
// runs can be checked for having executed the same requests.
func Fingerprint(name string, reqs []query.Named) (string, error) {
	items := make([]any, len(reqs))
	for i, n := range reqs {
		fp, err := n.Request.Fingerprint()
		if err != nil {
			return "", err
		}
		items[i] = map[string]any{"name": n.Name, "request": fp}
	}
	return ir.Fingerprint(ir.DomainWorkload, map[string]any{
		"name":    name,
		"queries": items,
	})
}
