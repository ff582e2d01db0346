package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/ingest"
	"github.com/ValentinKolb/jstore/lib/join"
	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/ValentinKolb/jstore/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags used to open a store location
func SetupStoreFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, "", WrapString("Storage engine of new stores (pebble, level, maple). Existing stores use the engine they were created with (default pebble)"))

	key = "key-mode"
	cmd.PersistentFlags().String(key, common.DefaultKeyMode, WrapString("Scalar type of the keys (string, int). Existing stores use their recorded key mode unless this flag is set explicitly. Range extraction needs int"))

	key = "batch-size"
	cmd.PersistentFlags().Int(key, common.DefaultBatchSize, WrapString("Number of documents committed atomically in one batch"))
}

// SetupIngestFlags adds the flags of the index commands
func SetupIngestFlags(cmd *cobra.Command) {
	key := "unescape"
	cmd.Flags().Bool(key, true, WrapString(`Replace the two character sequence \\ by \ before parsing a line`))

	key = "channel-capacity"
	cmd.Flags().Int(key, common.DefaultChannelCapacity, WrapString("Number of parsed documents buffered between the readers and the writer"))

	key = "progress-interval"
	cmd.Flags().Duration(key, common.DefaultProgressInterval, WrapString("Minimum time between two progress log lines"))
}

// SetupQueryFlags adds the flags of the query commands
func SetupQueryFlags(cmd *cobra.Command) {
	key := "missing"
	cmd.Flags().String(key, common.DefaultMissingPolicy, WrapString("What to do with requested keys without documents (fail, warn-and-skip)"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("jstore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the configuration of the current invocation from viper.
// Values of flags a command does not define keep their defaults.
func GetConfig() common.Config {
	conf := common.DefaultConfig()
	conf.Store.Engine = viper.GetString("engine")

	if v := viper.GetString("key-mode"); v != "" {
		conf.Store.KeyMode = v
	}
	if v := viper.GetInt("batch-size"); v > 0 {
		conf.Store.BatchSize = v
	}
	if viper.IsSet("unescape") {
		conf.Ingest.Unescape = viper.GetBool("unescape")
	}
	if v := viper.GetInt("channel-capacity"); v > 0 {
		conf.Ingest.ChannelCapacity = v
	}
	if v := viper.GetDuration("progress-interval"); v > 0 {
		conf.Ingest.ProgressInterval = v
	}
	if v := viper.GetInt("parallelism"); v > 0 {
		conf.Ingest.Parallelism = v
		conf.Query.Parallelism = v
	}
	if v := viper.GetString("key-field"); v != "" {
		conf.Ingest.KeyField = v
		conf.Query.KeyField = v
	}
	if v := viper.GetString("missing"); v != "" {
		conf.Query.Missing = v
	}
	if v := viper.GetString("log-level"); v != "" {
		conf.LogLevel = v
	}
	conf.MetricsFile = viper.GetString("metrics-file")

	return conf
}

// IngestOptions converts the configuration to ingestion options
func IngestOptions(conf common.Config) ingest.Options {
	return ingest.Options{
		KeyField:         conf.Ingest.KeyField,
		Unescape:         conf.Ingest.Unescape,
		Parallelism:      conf.Ingest.Parallelism,
		ChannelCapacity:  conf.Ingest.ChannelCapacity,
		ProgressInterval: conf.Ingest.ProgressInterval,
	}
}

// QueryOptions converts the configuration to query options
func QueryOptions(conf common.Config) (join.Options, error) {
	policy, err := join.ParseMissingPolicy(conf.Query.Missing)
	if err != nil {
		return join.Options{}, err
	}
	return join.Options{
		KeyField:    conf.Query.KeyField,
		Missing:     policy,
		Parallelism: conf.Query.Parallelism,
	}, nil
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// OpenStore opens the store described by conf. Without an explicitly set key
// mode an existing store keeps the key mode it was created with.
func OpenStore(conf common.StoreConfig) (store.IStore, error) {
	var engine db.Implementation
	if conf.Engine != "" {
		impl, err := db.ParseImplementation(conf.Engine)
		if err != nil {
			return nil, store.WrapError(store.RetCInvalidOperation, err, "invalid engine")
		}
		engine = impl
	}

	mode, err := document.ParseKeyMode(conf.KeyMode)
	if err != nil {
		return nil, store.WrapError(store.RetCInvalidOperation, err, "invalid key mode")
	}

	return lstore.Open(conf.Location, lstore.Options{
		Engine:       engine,
		KeyMode:      mode,
		AdoptKeyMode: !viper.IsSet("key-mode"),
		BatchSize:    conf.BatchSize,
		ReadOnly:     conf.ReadOnly,
	})
}

// --------------------------------------------------------------------------
// Process helper
// --------------------------------------------------------------------------

// SignalContext returns a context that is canceled on SIGINT or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ExitCode maps an error to the exit status of the process. Store errors
// exit with their return code, all other errors with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) && storeErr.Code != store.RetCSuccess {
		return int(storeErr.Code)
	}
	return 1
}

// CloseOutput closes w and reports the first of err and the close error
func CloseOutput(w interface{ Close() error }, err error) error {
	if closeErr := w.Close(); closeErr != nil && err == nil {
		return fmt.Errorf("could not close output: %w", closeErr)
	}
	return err
}
