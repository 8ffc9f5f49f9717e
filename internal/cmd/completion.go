package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate a shell completion script. Besides commands and flags it
completes run IDs for results, logs and checkpoint commands from the
results database.

Bash:
  $ source <(watts completion bash)

Zsh:
  $ watts completion zsh > "${fpath[1]}/_watts"

Fish:
  $ watts completion fish | source

PowerShell:
  PS> watts completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

func init() {
	for _, c := range []*cobra.Command{resultsShowCmd, resultsVerifyCmd, logsCmd} {
		c.ValidArgsFunction = completeRunID(false)
	}
	resultsPushCmd.ValidArgsFunction = completeRunID(true)
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return rootCmd.GenBashCompletionV2(out, true)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

// completeRunID offers "last" and the stored run IDs, newest first, each
// described by plugin, name and time. repeat allows several IDs.
func completeRunID(repeat bool) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 && !repeat {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		path := ""
		if f := cmd.Flag("db"); f != nil {
			path = f.Value.String()
		}
		db, err := openDatabase(path)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		defer db.Close()
		entries, err := db.Entries()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var out []string
		if strings.HasPrefix("last", toComplete) && len(entries) > 0 {
			out = append(out, "last\tmost recent run")
		}
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if !strings.HasPrefix(e.ID, toComplete) {
				continue
			}
			desc := fmt.Sprintf("%s %s", e.Plugin, e.Time.Local().Format("2006-01-02 15:04"))
			if e.Name != "" {
				desc += " " + e.Name
			}
			out = append(out, e.ID+"\t"+desc)
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}
