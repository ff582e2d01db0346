package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/jstore/cmd/index"
	"github.com/ValentinKolb/jstore/cmd/perf"
	"github.com/ValentinKolb/jstore/cmd/query"
	"github.com/ValentinKolb/jstore/cmd/util"
	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "jstore",
		Short: "typed-document join store",
		Long: fmt.Sprintf(`jstore (v%s)

Index large JSON-Lines exports as typed documents into a local embedded store
and join all documents of a key across types into one JSON object. Flags can
also be set as environment variables JSTORE_<FLAG> (e.g. JSTORE_BATCH_SIZE),
.env and .env.local files are loaded.`, Version),
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of jstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jstore v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(index.IndexCmd)
	RootCmd.AddCommand(index.IndexManyCmd)
	RootCmd.AddCommand(query.LookupCmd)
	RootCmd.AddCommand(query.ExtractRangeCmd)
	RootCmd.AddCommand(query.InfoCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)

	key := "key-field"
	RootCmd.PersistentFlags().String(key, common.DefaultKeyField, util.WrapString("Name of the key field in input documents and output objects"))
	key = "parallelism"
	RootCmd.PersistentFlags().Int(key, common.DefaultParallelism, util.WrapString("Number of inputs read concurrently (index-many) or keys resolved concurrently (lookup)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, common.DefaultLogLevel, util.WrapString("LogLevel is the level at which logs will be output to stderr (debug, info, warn, error)"))
	key = "metrics-file"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("Write the collected metrics in Prometheus text format to this file at exit"))
}

// setup binds the flags of the invoked command and initializes the loggers
func setup(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// teardown writes the metrics file, if one is configured
func teardown(_ *cobra.Command, _ []string) error {
	return writeMetrics()
}

func writeMetrics() error {
	if path := viper.GetString("metrics-file"); path != "" {
		return common.WriteMetrics(path)
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// PersistentPostRunE is skipped for failed commands
		_ = writeMetrics()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(util.ExitCode(err))
	}
}
