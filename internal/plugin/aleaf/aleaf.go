// Package aleaf drives the ALEAF capacity expansion model. ALEAF reads a
// single master workbook from its installation directory, so the plugin
// edits a copy in the workspace, installs it in place of the master for the
// duration of the run and restores the original afterwards.
package aleaf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/plugin"
	"github.com/felixgeelhaar/watts/internal/results"
	"github.com/felixgeelhaar/watts/internal/table"
)

const (
	// Name of the plugin.
	Name = "ALEAF"

	// EnvDir names the ALEAF installation directory.
	EnvDir = "ALEAF_DIR"

	// MasterWorkbook is the settings workbook ALEAF reads.
	MasterWorkbook = "ALEAF_Master_LC_GTEP.xlsx"

	// FuelSheet receives the rendered main template.
	FuelSheet = "Fuel"

	// PayloadKind identifies ALEAF payloads in stored results.
	PayloadKind = "aleaf.tech_summary"

	// Executable runs DriverScript from the installation directory.
	Executable   = "julia"
	DriverScript = "execute_ALEAF.jl"

	backupSuffix = ".watts-backup"
)

func init() {
	results.RegisterPayload(PayloadKind, func() results.Payload { return &TechSummary{} })
}

// TechSummary is the system technology summary written by ALEAF.
type TechSummary struct {
	Table *table.Table `json:"table"`
}

// Kind implements results.Payload.
func (*TechSummary) Kind() string { return PayloadKind }

// Case selects the ALEAF output folder of a run.
type Case struct {
	Scenario string
	Region   string
	ID       int
	Name     string
}

// DefaultCase is the case configured in the stock master workbook.
func DefaultCase() Case {
	return Case{Scenario: "LC_GTEP", Region: "USA", ID: 1, Name: "Test EXP"}
}

// OutputDir is the folder ALEAF writes the case results to.
func (c Case) OutputDir(aleafDir string) string {
	return filepath.Join(aleafDir, "output", c.Scenario, c.Region, fmt.Sprintf("case_id_%d_%s", c.ID, c.Name))
}

// SummaryFile is the name of the technology summary CSV.
func (c Case) SummaryFile() string {
	return c.Name + "__system_tech_summary_EXP.csv"
}

// Plugin runs ALEAF. Extra templates are keyed by the sheet they replace.
type Plugin struct {
	*plugin.TemplatePlugin

	Dir  string
	Case Case

	// now stamps output folder backups.
	now func() time.Time

	installed bool
}

// New creates an ALEAF plugin. ALEAF_DIR must be set.
func New(opts plugin.Options) (*Plugin, error) {
	dir := os.Getenv(EnvDir)
	if dir == "" {
		return nil, errors.NewConfigurationError(EnvDir, Name)
	}
	tp, err := plugin.NewTemplatePlugin(Name, MasterWorkbook, opts)
	if err != nil {
		return nil, err
	}
	return &Plugin{TemplatePlugin: tp, Dir: dir, Case: DefaultCase(), now: time.Now}, nil
}

func (p *Plugin) masterPath() string {
	return filepath.Join(p.Dir, "setting", MasterWorkbook)
}

// pristinePath is the unmodified master: the backup left by an interrupted
// run when there is one, the master itself otherwise.
func (p *Plugin) pristinePath() string {
	backup := p.masterPath() + backupSuffix
	if _, err := os.Stat(backup); err == nil {
		return backup
	}
	return p.masterPath()
}

// Prerun builds the modified workbook in the workspace and installs it as
// the master workbook.
func (p *Plugin) Prerun(_ context.Context, ws *plugin.Workspace, prm *params.Parameters) error {
	p.ResetInputs()

	local := ws.Path(MasterWorkbook)
	if err := plugin.CopyFile(p.pristinePath(), local); err != nil {
		return fmt.Errorf("%s: copy master workbook: %w", Name, err)
	}
	p.AddInput(MasterWorkbook)

	fuel, err := p.Template.RenderTable(prm)
	if err != nil {
		return err
	}
	if err := table.MergeSheet(local, FuelSheet, fuel); err != nil {
		return fmt.Errorf("%s: update %s sheet: %w", Name, FuelSheet, err)
	}

	for _, sheet := range p.ExtraTargets() {
		t, err := p.ExtraTemplates[sheet].RenderTable(prm)
		if err != nil {
			return err
		}
		ws.Logger.Debug("replacing sheet", "sheet", sheet)
		if err := table.ReplaceSheet(local, sheet, t); err != nil {
			return fmt.Errorf("%s: replace %s sheet: %w", Name, sheet, err)
		}
	}

	for _, src := range p.ExtraInputs {
		if err := p.CopyInput(ws, src); err != nil {
			return err
		}
	}

	if err := p.install(local); err != nil {
		return err
	}
	return p.backupOutputs(ws)
}

// install backs up the pristine master once and copies the workbook over it.
// An existing backup is left alone; it is the original from an interrupted run.
func (p *Plugin) install(local string) error {
	master := p.masterPath()
	backup := master + backupSuffix
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		if err := plugin.CopyFile(master, backup); err != nil {
			return fmt.Errorf("%s: back up master workbook: %w", Name, err)
		}
	}
	p.installed = true
	if err := plugin.CopyFile(local, master); err != nil {
		return fmt.Errorf("%s: install workbook: %w", Name, err)
	}
	return nil
}

// backupOutputs moves a stale output folder aside so Postrun cannot pick up
// results of an earlier run.
func (p *Plugin) backupOutputs(ws *plugin.Workspace) error {
	out := p.Case.OutputDir(p.Dir)
	if _, err := os.Stat(out); os.IsNotExist(err) {
		return nil
	}
	dest := out + "_backup_" + p.now().Format("20060102_150405")
	ws.Logger.Info("backing up previous output", "from", out, "to", dest)
	if err := os.Rename(out, dest); err != nil {
		return fmt.Errorf("%s: back up previous output: %w", Name, err)
	}
	return nil
}

// Run executes the ALEAF driver script from the installation directory.
func (p *Plugin) Run(ctx context.Context, ws *plugin.Workspace) (*results.ExecInfo, error) {
	if p.Executable() == "" {
		if err := p.SetExecutable(Executable); err != nil {
			return nil, err
		}
	}
	return p.Execute(ctx, ws, exec.Step{
		Cmd:     []string{p.Executable(), DriverScript},
		Workdir: p.Dir,
	})
}

// Postrun copies the technology summary into the workspace and parses it.
func (p *Plugin) Postrun(_ context.Context, ws *plugin.Workspace, prm *params.Parameters, info *results.ExecInfo) (*results.Results, error) {
	name := p.Case.SummaryFile()
	src := filepath.Join(p.Case.OutputDir(p.Dir), name)
	if _, err := os.Stat(src); err != nil {
		return nil, errors.NewOutputNotFoundError(Name, src)
	}
	if err := plugin.CopyFile(src, ws.Path(name)); err != nil {
		return nil, fmt.Errorf("%s: copy output: %w", Name, err)
	}
	summary, err := table.ReadCSVFile(ws.Path(name))
	if err != nil {
		return nil, err
	}
	return p.NewResults(ws, prm, info, []string{name}, &TechSummary{Table: summary})
}

// Cleanup restores the master workbook.
func (p *Plugin) Cleanup(_ context.Context, ws *plugin.Workspace) error {
	if !p.installed {
		return nil
	}
	master := p.masterPath()
	if err := os.Rename(master+backupSuffix, master); err != nil {
		return fmt.Errorf("%s: restore master workbook: %w", Name, err)
	}
	p.installed = false
	ws.Logger.Debug("restored master workbook", "path", master)
	return nil
}
