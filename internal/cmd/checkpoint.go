package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect the phase records of runs",
	Long: `Inspect the phase records of runs.

Every run started with a results database records its progress through the
prerun, run, postrun and store phases in <db>/.checkpoints. A run that was
interrupted or failed keeps its record, including the working directory and
the error of the failing phase.

Examples:
  watts checkpoint list
  watts checkpoint show 0190c4f2-...
  watts checkpoint prune`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var checkpointDB string

func checkpointManager() *checkpoint.Manager {
	path := checkpointDB
	if path == "" {
		path = cfg.Database.Path
	}
	return checkpoint.ForDatabase(path)
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := checkpointManager()
		ids, err := mgr.List()
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No checkpoints found.")
			return nil
		}

		var states []*checkpoint.State
		for _, id := range ids {
			s, err := mgr.Load(id)
			if err != nil {
				continue // Skip unreadable checkpoints
			}
			states = append(states, s)
		}
		sort.Slice(states, func(i, j int) bool {
			return states[i].StartedAt.After(states[j].StartedAt)
		})

		for _, s := range states {
			completed := 0
			for _, t := range s.Tasks {
				if t.Status == checkpoint.StatusCompleted {
					completed++
				}
			}
			fmt.Fprintf(out, "%s %s\n", statusIcon(s.Status), s.RunID)
			fmt.Fprintf(out, "   Plugin:   %s\n", s.Plugin)
			fmt.Fprintf(out, "   Status:   %s\n", s.Status)
			fmt.Fprintf(out, "   Started:  %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "   Progress: %d/%d phases\n", completed, len(s.Tasks))
			fmt.Fprintln(out)
		}
		return nil
	},
}

func statusIcon(s checkpoint.Status) string {
	switch s {
	case checkpoint.StatusCompleted:
		return "✓"
	case checkpoint.StatusFailed:
		return "✗"
	case checkpoint.StatusRunning:
		return "⏳"
	}
	return "·"
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the phases of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := checkpointManager().Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checkpoint: %s\n\n", s.RunID)
		fmt.Fprintf(out, "Plugin:     %s\n", s.Plugin)
		if s.Name != "" {
			fmt.Fprintf(out, "Name:       %s\n", s.Name)
		}
		fmt.Fprintf(out, "Status:     %s\n", s.Status)
		fmt.Fprintf(out, "Started:    %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Updated:    %s\n", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Duration:   %s\n", s.UpdatedAt.Sub(s.StartedAt).Round(time.Millisecond))
		if dir, ok := s.GetMetadata("workdir"); ok {
			fmt.Fprintf(out, "Workdir:    %s\n", dir)
		}
		if id, ok := s.GetMetadata("result_id"); ok {
			fmt.Fprintf(out, "Result:     %s\n", id)
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, "Phases:")
		for _, t := range s.Tasks {
			fmt.Fprintf(out, "  %s %-8s %s", statusIcon(t.Status), t.ID, t.Status)
			if d := t.Duration(); d > 0 {
				fmt.Fprintf(out, " (%s)", d.Round(time.Millisecond))
			}
			fmt.Fprintln(out)
			if t.Error != "" {
				fmt.Fprintf(out, "      %s\n", t.Error)
			}
			for _, a := range t.Artifacts {
				fmt.Fprintf(out, "      → %s\n", a)
			}
		}
		return nil
	},
}

var checkpointPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete the records of completed runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := checkpointManager().Prune()
		if err != nil {
			return fmt.Errorf("failed to prune checkpoints: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d checkpoints\n", n)
		return nil
	},
}

func init() {
	checkpointCmd.PersistentFlags().StringVar(&checkpointDB, "db", "", "results database directory (default from config)")
	checkpointCmd.AddCommand(checkpointListCmd, checkpointShowCmd, checkpointPruneCmd)
	rootCmd.AddCommand(checkpointCmd)
}
