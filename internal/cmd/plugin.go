package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/plugin"
	"github.com/felixgeelhaar/watts/internal/plugin/aleaf"
	"github.com/felixgeelhaar/watts/internal/plugin/openmc"
	"github.com/felixgeelhaar/watts/internal/plugin/pyarc"
)

// plugins holds the codes watts knows how to drive.
var plugins = newPluginManager()

func newPluginManager() *plugin.Manager {
	m := plugin.NewManager()
	m.Register(aleaf.Name, "Capacity expansion with ALEAF (requires "+aleaf.EnvDir+")",
		func(opts plugin.Options) (plugin.Plugin, error) {
			return aleaf.New(opts)
		})
	m.Register(pyarc.Name, "Fast reactor design with PyARC (requires "+pyarc.EnvDir+")",
		func(opts plugin.Options) (plugin.Plugin, error) {
			return pyarc.New(opts)
		})
	// OpenMC reads its model from a directory of XML templates given as
	// the template option.
	m.Register(openmc.Name, "Monte Carlo transport with OpenMC (openmc on PATH or "+openmc.EnvExecutable+")",
		func(opts plugin.Options) (plugin.Plugin, error) {
			if opts.Template == "" {
				return nil, fmt.Errorf("%s: a template directory is required", openmc.Name)
			}
			build, err := openmc.TemplateBuilder(opts.Template)
			if err != nil {
				return nil, err
			}
			return openmc.New(build, opts)
		})
	return m
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the supported simulation codes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range plugins.Names() {
			fmt.Fprintf(out, "%-8s %s\n", name, plugins.Description(name))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
