package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/plugin/aleaf"
	"github.com/felixgeelhaar/watts/internal/plugin/openmc"
	"github.com/felixgeelhaar/watts/internal/plugin/pyarc"
	"github.com/felixgeelhaar/watts/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the watts version. With --verbose or --json the build details and
the executables each plugin would run on this machine are included.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

var (
	versionVerbose bool
	versionJSON    bool
)

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show build details and plugin executables")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()
	out := cmd.OutOrStdout()

	if !versionJSON && !versionVerbose {
		fmt.Fprintf(out, "watts %s\n", info.Short())
		return nil
	}

	info = info.WithTools(pluginTools()...)
	if versionJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintln(out, info.String())
	return nil
}

// pluginTools resolves the executable of every plugin on PATH.
func pluginTools() []version.Tool {
	tools := []version.Tool{
		{Plugin: aleaf.Name, Executable: aleaf.Executable},
		{Plugin: pyarc.Name, Executable: pyarc.Python},
		{Plugin: openmc.Name, Executable: openmc.ExecutableName()},
	}
	for i := range tools {
		if path, err := exec.LookPath(tools[i].Executable); err == nil {
			tools[i].Path = path
		}
	}
	return tools
}
