package cli

import (
	"github.com/spf13/cobra"
)

const versionString = "1.0.0"
const defaultConfigPath = "./modernity.toml"

type cliOptions struct {
	configPath string
	configSet  bool
	count      int
	window     string
	resultsDir string
	history    bool
	verbose    bool
	library    string
}

func newRootCommand(opts *cliOptions, run func(cmd *cobra.Command) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modernity <library>",
		Short: "Measure how a Rust crate adopted language idioms across its releases",
		Long: `modernity samples published versions of a crates.io library, parses each
release and writes one CSV row of idiom-adoption metrics per version.`,
		Example: `  modernity serde
  modernity tokio --count 10 --range 2019-01-01..2023-12-31
  modernity regex --results ./out --verbose`,
		Version:       versionString,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.library = args[0]
			opts.configSet = cmd.Flags().Changed("config")
			return run(cmd)
		},
	}
	cmd.SetVersionTemplate("modernity v{{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", defaultConfigPath, "path to config file")
	flags.IntVarP(&opts.count, "count", "n", 0, "number of versions to sample (default from config)")
	flags.StringVar(&opts.window, "range", "", "release window START..END (YYYY-MM-DD or RFC3339, either side may be empty)")
	flags.StringVar(&opts.resultsDir, "results", "", "directory for the CSV table (default from config)")
	flags.BoolVar(&opts.history, "history", false, "record the run in the local history store and list past runs")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	return cmd
}
