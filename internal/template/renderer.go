// Package template renders tool input files from a parameter set.
//
// Templates use Go text/template syntax and address parameters as fields of
// the root context, e.g. {{ .radius }}. Every field referenced from the root
// context must be defined; otherwise rendering fails with a missing
// parameter error naming all undefined keys.
package template

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	texttemplate "text/template"
	"text/template/parse"

	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/table"
)

// Renderer is a parsed template bound to its source file.
type Renderer struct {
	path string
	tmpl *texttemplate.Template
	keys []string
}

// NewRenderer parses the template at path.
func NewRenderer(path string) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Parse(filepath.Base(path), string(data))
}

// Parse parses template text. name is used in error messages.
func Parse(name, text string) (*Renderer, error) {
	tmpl, err := texttemplate.New(name).
		Funcs(funcs).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTemplateInvalid, fmt.Sprintf("parse template %s", name), err)
	}

	seen := map[string]bool{}
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			collectKeys(t.Tree.Root, true, seen)
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Renderer{path: name, tmpl: tmpl, keys: keys}, nil
}

// Path returns the template's name or source path.
func (r *Renderer) Path() string {
	return r.path
}

// Keys returns the parameter keys the template references, sorted.
func (r *Renderer) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Render substitutes p into the template.
func (r *Renderer) Render(p *params.Parameters) (string, error) {
	var missing []string
	for _, k := range r.keys {
		if !p.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return "", errors.NewMissingParameterError(r.path, missing)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p.ToMap()); err != nil {
		return "", errors.Wrap(errors.ErrCodeTemplateInvalid, fmt.Sprintf("render template %s", r.path), err)
	}
	return buf.String(), nil
}

// RenderFile renders into dest, creating parent directories as needed.
func (r *Renderer) RenderFile(p *params.Parameters, dest string) error {
	out, err := r.Render(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dest, err)
	}
	if err := os.WriteFile(dest, []byte(out), 0644); err != nil {
		return fmt.Errorf("write rendered template: %w", err)
	}
	return nil
}

// RenderTable renders the template and parses the result as delimited text
// with a header row.
func (r *Renderer) RenderTable(p *params.Parameters) (*table.Table, error) {
	out, err := r.Render(p)
	if err != nil {
		return nil, err
	}
	t, err := table.ReadCSV(strings.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", r.path, err)
	}
	return t, nil
}

var funcs = texttemplate.FuncMap{
	"round": func(v any, places int) (float64, error) {
		f, err := toFloat(v)
		if err != nil {
			return 0, err
		}
		scale := math.Pow(10, float64(places))
		return math.Round(f*scale) / scale, nil
	},
	"mul": func(a, b any) (float64, error) {
		x, err := toFloat(a)
		if err != nil {
			return 0, err
		}
		y, err := toFloat(b)
		if err != nil {
			return 0, err
		}
		return x * y, nil
	},
	"upper":  strings.ToUpper,
	"lower":  strings.ToLower,
	"format": params.FormatValue,
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%v is not numeric", v)
}

// collectKeys records the first identifier of every field evaluated against
// the root context. Inside with/range dot is rebound, so bare fields there are
// not parameter lookups; $.key still is.
func collectKeys(node parse.Node, dotIsRoot bool, seen map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			collectKeys(c, dotIsRoot, seen)
		}
	case *parse.ActionNode:
		collectKeys(n.Pipe, dotIsRoot, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, c := range n.Cmds {
			collectKeys(c, dotIsRoot, seen)
		}
	case *parse.CommandNode:
		for _, a := range n.Args {
			collectKeys(a, dotIsRoot, seen)
		}
	case *parse.FieldNode:
		if dotIsRoot && len(n.Ident) > 0 {
			seen[n.Ident[0]] = true
		}
	case *parse.VariableNode:
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			seen[n.Ident[1]] = true
		}
	case *parse.ChainNode:
		collectKeys(n.Node, dotIsRoot, seen)
	case *parse.IfNode:
		collectKeys(n.Pipe, dotIsRoot, seen)
		collectKeys(n.List, dotIsRoot, seen)
		collectKeys(n.ElseList, dotIsRoot, seen)
	case *parse.WithNode:
		collectKeys(n.Pipe, dotIsRoot, seen)
		collectKeys(n.List, false, seen)
		collectKeys(n.ElseList, dotIsRoot, seen)
	case *parse.RangeNode:
		collectKeys(n.Pipe, dotIsRoot, seen)
		collectKeys(n.List, false, seen)
		collectKeys(n.ElseList, dotIsRoot, seen)
	case *parse.TemplateNode:
		collectKeys(n.Pipe, dotIsRoot, seen)
	}
}
