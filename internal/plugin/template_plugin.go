package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/results"
	"github.com/felixgeelhaar/watts/internal/template"
)

// TemplatePlugin is a plugin whose input is produced by rendering a template.
// The main template is written to InputName; extra templates are written to
// their target names and extra inputs are copied unchanged.
type TemplatePlugin struct {
	*Base

	Template       *template.Renderer
	InputName      string
	ExtraTemplates map[string]*template.Renderer
	ExtraInputs    []string
}

// NewTemplatePlugin parses the templates named in opts. An empty inputName
// keeps the template's own file name.
func NewTemplatePlugin(name, inputName string, opts Options) (*TemplatePlugin, error) {
	if opts.Template == "" {
		return nil, fmt.Errorf("%s: a template file is required", name)
	}
	main, err := template.NewRenderer(opts.Template)
	if err != nil {
		return nil, err
	}

	extras, err := parseExtraTemplates(opts.ExtraTemplates)
	if err != nil {
		return nil, err
	}
	if inputName == "" {
		inputName = main.Path()
	}

	base := NewBase(name)
	base.ShowStdout = opts.ShowStdout
	base.ShowStderr = opts.ShowStderr

	return &TemplatePlugin{
		Base:           base,
		Template:       main,
		InputName:      inputName,
		ExtraTemplates: extras,
		ExtraInputs:    append([]string(nil), opts.ExtraInputs...),
	}, nil
}

func parseExtraTemplates(paths map[string]string) (map[string]*template.Renderer, error) {
	extras := make(map[string]*template.Renderer, len(paths))
	for target, path := range paths {
		r, err := template.NewRenderer(path)
		if err != nil {
			return nil, err
		}
		if target == "" {
			target = filepath.Base(path)
		}
		extras[target] = r
	}
	return extras, nil
}

// ExtraTargets returns the extra template targets, sorted.
func (t *TemplatePlugin) ExtraTargets() []string {
	targets := make([]string, 0, len(t.ExtraTemplates))
	for k := range t.ExtraTemplates {
		targets = append(targets, k)
	}
	sort.Strings(targets)
	return targets
}

// Prerun renders the templates and copies the extra inputs into ws.
func (t *TemplatePlugin) Prerun(_ context.Context, ws *Workspace, p *params.Parameters) error {
	t.ResetInputs()

	ws.Logger.Debug("rendering template", "template", t.Template.Path(), "input", t.InputName)
	if err := t.Template.RenderFile(p, ws.Path(t.InputName)); err != nil {
		return err
	}
	t.AddInput(t.InputName)

	for _, target := range t.ExtraTargets() {
		if err := t.ExtraTemplates[target].RenderFile(p, ws.Path(target)); err != nil {
			return err
		}
		t.AddInput(target)
	}

	for _, src := range t.ExtraInputs {
		if err := t.CopyInput(ws, src); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the configured executable with the rendered input as its
// only argument.
func (t *TemplatePlugin) Run(ctx context.Context, ws *Workspace) (*results.ExecInfo, error) {
	if t.Executable() == "" {
		return nil, errors.NewExecutableNotFoundError(t.Name(), "(unset)")
	}
	return t.Execute(ctx, ws, exec.Step{Cmd: []string{t.Executable(), t.InputName}})
}
