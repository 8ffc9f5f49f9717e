package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/errors"
)

var (
	logsLines   int
	logsNumbers bool
	logsDB      string
)

var logsCmd = &cobra.Command{
	Use:   "logs [id|last]",
	Short: "Show the output a simulation code wrote during a run",
	Long: `Show the standard output a simulation code wrote during a stored run.

Examples:
  # Show the whole log of the most recent run
  watts logs last

  # Show the last 20 lines with line numbers
  watts logs 0190c4f2-... --lines 20 --numbers`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 0, "show only the last N lines")
	logsCmd.Flags().BoolVar(&logsNumbers, "numbers", false, "prefix lines with their number")
	logsCmd.Flags().StringVar(&logsDB, "db", "", "results database directory (default from config)")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(logsDB)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := resolveRun(db, args)
	if err != nil {
		return err
	}
	stdout, err := res.Stdout()
	if err != nil {
		return errors.Wrap(errors.ErrCodeOutputNotFound, fmt.Sprintf("run %s has no log", res.ID()), err)
	}
	return tail(cmd.OutOrStdout(), stdout, logsLines, logsNumbers)
}

// tail writes the last n lines of text to w, or all of them when n <= 0.
func tail(w io.Writer, text string, n int, numbers bool) error {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	start := 0
	if n > 0 && len(lines) > n {
		start = len(lines) - n
	}
	for i, line := range lines[start:] {
		var err error
		if numbers {
			_, err = fmt.Fprintf(w, "%5d  %s\n", start+i+1, line)
		} else {
			_, err = fmt.Fprintln(w, line)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
