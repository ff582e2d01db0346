package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultEngine           = "pebble"
	DefaultKeyMode          = "string"
	DefaultKeyField         = "id"
	DefaultBatchSize        = 1_000_000
	DefaultParallelism      = 4
	DefaultChannelCapacity  = 4096
	DefaultMissingPolicy    = "fail"
	DefaultProgressInterval = 5 * time.Second
	DefaultLogLevel         = "info"
)

// --------------------------------------------------------------------------
// Configuration structs
// --------------------------------------------------------------------------

// StoreConfig holds all parameters needed to open a store location
type StoreConfig struct {
	Location  string
	Engine    string
	KeyMode   string
	BatchSize int
	ReadOnly  bool
}

// IngestConfig holds the parameters of the index commands
type IngestConfig struct {
	KeyField         string
	Unescape         bool
	Parallelism      int
	ChannelCapacity  int
	ProgressInterval time.Duration
}

// QueryConfig holds the parameters of the lookup and extract-range commands
type QueryConfig struct {
	KeyField    string
	Missing     string
	Parallelism int
}

// Config is the complete configuration of one CLI invocation
type Config struct {
	Store       StoreConfig
	Ingest      IngestConfig
	Query       QueryConfig
	LogLevel    string
	MetricsFile string
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Engine:    DefaultEngine,
			KeyMode:   DefaultKeyMode,
			BatchSize: DefaultBatchSize,
		},
		Ingest: IngestConfig{
			KeyField:         DefaultKeyField,
			Unescape:         true,
			Parallelism:      DefaultParallelism,
			ChannelCapacity:  DefaultChannelCapacity,
			ProgressInterval: DefaultProgressInterval,
		},
		Query: QueryConfig{
			KeyField:    DefaultKeyField,
			Missing:     DefaultMissingPolicy,
			Parallelism: DefaultParallelism,
		},
		LogLevel: DefaultLogLevel,
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Location", c.Store.Location)
	addField("Engine", c.Store.Engine)
	addField("Key Mode", c.Store.KeyMode)
	addField("Batch Size", strconv.Itoa(c.Store.BatchSize))
	addField("Read Only", strconv.FormatBool(c.Store.ReadOnly))

	addSection("Ingestion")
	addField("Key Field", c.Ingest.KeyField)
	addField("Unescape", strconv.FormatBool(c.Ingest.Unescape))
	addField("Parallelism", strconv.Itoa(c.Ingest.Parallelism))
	addField("Channel Capacity", strconv.Itoa(c.Ingest.ChannelCapacity))
	addField("Progress Interval", c.Ingest.ProgressInterval.String())

	addSection("Query")
	addField("Key Field", c.Query.KeyField)
	addField("Missing Keys", c.Query.Missing)
	addField("Parallelism", strconv.Itoa(c.Query.Parallelism))

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.MetricsFile != "" {
		addField("Metrics File", c.MetricsFile)
	}

	return sb.String()
}
