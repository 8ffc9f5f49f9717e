package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/checkpoint"
	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/log"
	"github.com/felixgeelhaar/watts/internal/metrics"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/plugin"
	"github.com/felixgeelhaar/watts/internal/plugin/aleaf"
	"github.com/felixgeelhaar/watts/internal/plugin/openmc"
	"github.com/felixgeelhaar/watts/internal/plugin/pyarc"
	"github.com/felixgeelhaar/watts/internal/progress"
	"github.com/felixgeelhaar/watts/internal/results"
	"github.com/felixgeelhaar/watts/internal/telemetry"
	"github.com/felixgeelhaar/watts/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation code on a parameter file",
	Long: `Run a simulation code on a parameter file.

The parameters fill the templates of the run; the rendered inputs and the
outputs of the code are copied into the results database.

Examples:
  watts run pyarc --params core.yaml --template pyarc_template
  watts run aleaf --params fuel.yaml --template fuel.csv --extra-template Generator=gen.csv
  watts run openmc --params sphere.yaml --template-dir model/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// runFlags are shared by every run subcommand.
type runFlags struct {
	params         string
	template       string
	extraTemplates []string
	extraInputs    []string
	name           string
	db             string
	noDB           bool
	workdir        string
	keepWorkdir    bool
	showStdout     bool
	showStderr     bool
	quiet          bool
	metricsFile    string
}

func newRunCommand(name, use, short, templateFlag, templateUsage string) *cobra.Command {
	f := &runFlags{}
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlugin(cmd, name, f)
		},
	}
	c.Flags().StringVarP(&f.params, "params", "p", "", "parameter file (YAML or JSON)")
	c.Flags().StringVarP(&f.template, templateFlag, "t", "", templateUsage)
	if templateFlag == "template" {
		c.Flags().StringArrayVar(&f.extraTemplates, "extra-template", nil, "additional template as TARGET=PATH or PATH (repeatable)")
	}
	c.Flags().StringArrayVar(&f.extraInputs, "extra-input", nil, "file copied into the run unchanged (repeatable)")
	c.Flags().StringVar(&f.name, "name", "", "workflow name recorded with the results")
	c.Flags().StringVar(&f.db, "db", "", "results database directory (default from config)")
	c.Flags().BoolVar(&f.noDB, "no-db", false, "do not store the results; the working directory is kept")
	c.Flags().StringVar(&f.workdir, "workdir", "", "run in this directory instead of a temporary one")
	c.Flags().BoolVar(&f.keepWorkdir, "keep-workdir", false, "keep the temporary working directory")
	c.Flags().BoolVar(&f.showStdout, "show-stdout", false, "stream the standard output of the code")
	c.Flags().BoolVar(&f.showStderr, "show-stderr", false, "stream the standard error of the code")
	c.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not show progress")
	c.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
	c.MarkFlagRequired(templateFlag)
	c.MarkFlagFilename("params", "yaml", "yml", "json")
	if templateFlag == "template-dir" {
		c.MarkFlagDirname(templateFlag)
	}
	return c
}

func init() {
	runCmd.AddCommand(
		newRunCommand(aleaf.Name, "aleaf", "Run ALEAF on a templated Fuel sheet",
			"template", "CSV template merged into the Fuel sheet"),
		newRunCommand(pyarc.Name, "pyarc", "Run PyARC on a templated SON input",
			"template", "template rendered into "+pyarc.InputName),
		newRunCommand(openmc.Name, "openmc", "Run OpenMC on a templated XML model",
			"template-dir", "directory holding geometry.xml, materials.xml and settings.xml templates"),
	)
	rootCmd.AddCommand(runCmd)
}

func runPlugin(cmd *cobra.Command, name string, f *runFlags) error {
	ctx := cmd.Context()
	logger := log.DefaultLogger()

	p := params.New()
	if f.params != "" {
		loaded, err := params.Load(f.params)
		if err != nil {
			return err
		}
		p = loaded
	}

	// ALEAF extra templates replace workbook sheets named by their target.
	extras, err := parseExtraTemplates(f.extraTemplates, name == aleaf.Name)
	if err != nil {
		return err
	}
	pl, err := plugins.New(name, plugin.Options{
		Template:       f.template,
		ExtraTemplates: extras,
		ExtraInputs:    f.extraInputs,
		ShowStdout:     f.showStdout || cfg.Run.ShowStdout,
		ShowStderr:     f.showStderr || cfg.Run.ShowStderr,
	})
	if err != nil {
		return err
	}

	opts := plugin.InvokeOptions{
		Name:        f.name,
		Workdir:     f.workdir,
		KeepWorkdir: f.keepWorkdir || cfg.Run.KeepWorkdir,
		Logger:      logger,
		Stdout:      progress.NewStreamWriter(cmd.ErrOrStderr(), "["+pl.Name()+"]"),
		Stderr:      progress.NewStreamWriter(cmd.ErrOrStderr(), "["+pl.Name()+" stderr]"),
	}
	if !f.noDB {
		db, err := openDatabase(f.db)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.DB = db
		if cfg.Run.Checkpoints {
			opts.Checkpoints = checkpoint.ForDatabase(db.Path())
		}
	}

	var observers []func(*checkpoint.State, string)

	shutdown, err := telemetry.InitProvider(ctx, cfg.Telemetry, version.Version)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "failed to initialize tracing", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()
	ctx, tracer := telemetry.StartRun(ctx, telemetry.GetTracerProvider(), pl.Name(), f.name)
	observers = append(observers, tracer.Observe)

	metricsFile := f.metricsFile
	if metricsFile == "" {
		metricsFile = cfg.Run.MetricsFile
	}
	reg, m := metrics.NewRegistry()
	observers = append(observers, m.Observe)

	var ind *progress.Indicator
	if !f.quiet {
		ind = progress.NewIndicator(progress.Config{
			Writer:      cmd.ErrOrStderr(),
			Label:       pl.Name(),
			ShowSpinner: !f.showStdout && !f.showStderr,
		})
		observers = append(observers, ind.Observe)
		ind.Start()
	}
	opts.Observer = func(s *checkpoint.State, task string) {
		for _, o := range observers {
			o(s, task)
		}
	}

	start := time.Now()
	res, err := plugin.Invoke(ctx, pl, p, opts)
	flushStreams(opts)
	if ind != nil {
		ind.Stop()
		ind.PrintSummary()
	}

	tracer.End(err)
	m.RecordRun(pl.Name(), time.Since(start), err)
	if metricsFile != "" {
		if werr := metrics.WriteTextfile(metricsFile, reg); werr != nil {
			logger.Warn("failed to write metrics", "path", metricsFile, "error", werr)
		}
	}
	if err != nil {
		return err
	}
	return printRun(cmd, res)
}

func flushStreams(opts plugin.InvokeOptions) {
	for _, w := range []any{opts.Stdout, opts.Stderr} {
		if sw, ok := w.(*progress.StreamWriter); ok {
			sw.Flush()
		}
	}
}

// parseExtraTemplates reads TARGET=PATH pairs. A bare PATH targets the
// file's base name, without its extension when targets are sheet names.
func parseExtraTemplates(specs []string, sheets bool) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(specs))
	for _, s := range specs {
		target, path, ok := strings.Cut(s, "=")
		if !ok {
			target, path = "", s
		}
		if path == "" {
			return nil, fmt.Errorf("invalid --extra-template %q: empty path", s)
		}
		if target == "" {
			target = filepath.Base(path)
			if sheets {
				target = strings.TrimSuffix(target, filepath.Ext(target))
			}
		}
		if _, dup := m[target]; dup {
			return nil, fmt.Errorf("duplicate --extra-template target %q", target)
		}
		m[target] = path
	}
	return m, nil
}

func printRun(cmd *cobra.Command, res *results.Results) error {
	out := cmd.OutOrStdout()
	if res.ID() != "" {
		fmt.Fprintf(out, "Result:   %s\n", res.ID())
	}
	fmt.Fprintf(out, "Plugin:   %s\n", res.Plugin())
	fmt.Fprintf(out, "Location: %s\n", res.BasePath())
	if s := payloadSummary(res); s != "" {
		fmt.Fprintf(out, "Summary:  %s\n", s)
	}
	return nil
}

// payloadSummary describes the payload of res in one line.
func payloadSummary(res *results.Results) string {
	switch pl := res.Payload().(type) {
	case *openmc.Output:
		return fmt.Sprintf("k-effective %s, %d statepoints", pl.Keff, len(pl.Statepoints))
	case *pyarc.Data:
		return fmt.Sprintf("%d result values", len(pl.Values))
	case *aleaf.TechSummary:
		if pl.Table == nil {
			return ""
		}
		return fmt.Sprintf("tech summary with %d rows", len(pl.Table.Rows))
	case nil:
		return ""
	default:
		return pl.Kind()
	}
}
