package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/archive"
	"github.com/felixgeelhaar/watts/internal/database"
	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/log"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/progress"
	"github.com/felixgeelhaar/watts/internal/results"
	"github.com/felixgeelhaar/watts/internal/tui"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect the results database",
	Long: `Inspect the results database.

Every successful run is appended to the database with copies of its inputs
and outputs. Runs are addressed by ID; "last" names the most recent run.

Examples:
  watts results list
  watts results show last
  watts results verify 0190c4f2-...
  watts results push --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var resultsDB string

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs in append order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(resultsDB)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.Entries()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(out, "No results in %s\n", db.Path())
			return nil
		}
		fmt.Fprintln(out, renderEntries(entries))
		return nil
	},
}

func renderEntries(entries []database.Entry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "Plugin", "Name", "Time")
	for _, e := range entries {
		t.Row(fmt.Sprint(e.Seq), e.ID, e.Plugin, e.Name, e.Time.Local().Format("2006-01-02 15:04:05"))
	}
	return t.Render()
}

var resultsShowJSON bool

var resultsShowCmd = &cobra.Command{
	Use:   "show [id|last]",
	Short: "Show a stored run",
	Long: `Show a stored run. Without an argument an interactive terminal offers a
choice among the stored runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(resultsDB)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := resolveRun(db, args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if resultsShowJSON {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal result: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		return showResult(out, res)
	},
}

func lookup(db *database.Database, id string) (*results.Results, error) {
	if id == "last" {
		return db.Last()
	}
	return db.Get(id)
}

// resolveRun returns the run named by args[0], or asks for one when no
// argument was given.
func resolveRun(db *database.Database, args []string) (*results.Results, error) {
	if len(args) > 0 {
		return lookup(db, args[0])
	}
	if !tui.ShouldPrompt() {
		return nil, fmt.Errorf("a run ID or \"last\" is required")
	}
	entries, err := db.Entries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.NewRunNotFoundError("(last)")
	}
	options := make([]tui.Option, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		label := fmt.Sprintf("%s  %-7s %s", e.Time.Local().Format("2006-01-02 15:04"), e.Plugin, e.ID)
		if e.Name != "" {
			label += "  " + e.Name
		}
		options = append(options, tui.Option{Label: label, Value: e.ID})
	}
	id, err := tui.PromptForSelect("Select a run", options)
	if err != nil {
		return nil, err
	}
	return db.Get(id)
}

func showResult(w io.Writer, res *results.Results) error {
	info := res.ExecInfo()
	fmt.Fprintf(w, "Result:   %s\n", res.ID())
	fmt.Fprintf(w, "Plugin:   %s\n", res.Plugin())
	if res.Name() != "" {
		fmt.Fprintf(w, "Name:     %s\n", res.Name())
	}
	fmt.Fprintf(w, "Time:     %s\n", res.Time().Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Location: %s\n", res.BasePath())
	fmt.Fprintf(w, "Command:  %s\n", strings.Join(info.Command, " "))
	fmt.Fprintf(w, "Exit:     %d after %s\n", info.ExitCode, info.Duration.Round(time.Millisecond))
	if s := payloadSummary(res); s != "" {
		fmt.Fprintf(w, "Summary:  %s\n", s)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Inputs:")
	for _, name := range res.Inputs() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w, "Outputs:")
	for _, name := range res.Outputs() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Parameters:")
	return res.Parameters().ShowSummary(w, params.SummaryOptions{})
}

var resultsVerifyCmd = &cobra.Command{
	Use:   "verify [id|last]",
	Short: "Check stored files against the run manifest",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(resultsDB)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := resolveRun(db, args)
		if err != nil {
			return err
		}
		m, changed, err := db.Verify(res)
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			sort.Strings(changed)
			return errors.New(errors.ErrCodeStorage, fmt.Sprintf("run %s: modified or missing files: %s", res.ID(), strings.Join(changed, ", ")))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d inputs and %d outputs match the manifest\n",
			res.ID(), len(m.InputHashes), len(m.OutputHashes))
		return nil
	},
}

var resultsClearYes bool

var resultsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(resultsDB)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Len()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if n == 0 {
			fmt.Fprintln(out, "Nothing to clear.")
			return nil
		}
		if !resultsClearYes {
			if !tui.ShouldPrompt() {
				return fmt.Errorf("refusing to delete %d runs without --yes", n)
			}
			ok, err := tui.PromptForConfirmation(fmt.Sprintf("Delete %d runs from %s?", n, db.Path()), false)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}
		if err := db.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Deleted %d runs\n", n)
		return nil
	},
}

var resultsPushAll bool

var resultsPushCmd = &cobra.Command{
	Use:   "push [id|last]...",
	Short: "Upload stored runs to the configured object store",
	Long: `Upload stored runs to the S3-compatible bucket configured in the
archive section of watts.yaml. Each run is stored under <prefix>/<run dir>/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !resultsPushAll {
			return fmt.Errorf("name runs to push or use --all")
		}
		if !cfg.Archive.Enabled() {
			return errors.New(errors.ErrCodeConfigInvalid, "no archive endpoint configured").
				WithSuggestion("Add an archive section to watts.yaml; see 'watts config view'")
		}
		arc, err := archive.New(cfg.Archive, log.DefaultLogger())
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, "invalid archive configuration", err)
		}

		db, err := openDatabase(resultsDB)
		if err != nil {
			return err
		}
		defer db.Close()

		var dirs []string
		if resultsPushAll {
			entries, err := db.Entries()
			if err != nil {
				return err
			}
			for _, e := range entries {
				dirs = append(dirs, db.RunDir(e))
			}
		} else {
			for _, id := range args {
				res, err := lookup(db, id)
				if err != nil {
					return err
				}
				dirs = append(dirs, db.RunDirOf(res))
			}
		}
		return pushRuns(cmd, arc, dirs)
	},
}

func pushRuns(cmd *cobra.Command, arc *archive.Archive, dirs []string) error {
	bar := progress.NewBarIndicator(cmd.ErrOrStderr(), len(dirs))
	var failed int
	var firstErr error
	for _, dir := range dirs {
		_, err := arc.Push(cmd.Context(), dir)
		bar.Increment(err == nil)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	bar.Finish()
	if firstErr != nil {
		return errors.Wrap(errors.ErrCodeStorage, fmt.Sprintf("failed to push %d of %d runs", failed, len(dirs)), firstErr).
			WithSuggestion("Check the archive endpoint and credentials in watts.yaml")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pushed %d runs\n", len(dirs))
	return nil
}

func init() {
	resultsCmd.PersistentFlags().StringVar(&resultsDB, "db", "", "results database directory (default from config)")
	resultsShowCmd.Flags().BoolVar(&resultsShowJSON, "json", false, "print the result record as JSON")
	resultsClearCmd.Flags().BoolVarP(&resultsClearYes, "yes", "y", false, "do not ask for confirmation")
	resultsPushCmd.Flags().BoolVar(&resultsPushAll, "all", false, "push every stored run")

	resultsCmd.AddCommand(resultsListCmd, resultsShowCmd, resultsVerifyCmd, resultsClearCmd, resultsPushCmd)
	rootCmd.AddCommand(resultsCmd)
}
