// Package common holds the ambient infrastructure shared by all jstore packages
// and commands.
//
//   - logger.go: a dragonboat logger.ILogger factory rendering through slog and
//     tint on stderr. Packages obtain named loggers with logger.GetLogger and the
//     CLI installs the factory with InitLoggers.
//   - config.go: typed configuration of one CLI invocation with a sectioned
//     String() dump.
//   - metrics.go: the process wide VictoriaMetrics set and the counters and
//     histograms recorded by the store, ingestion and query packages.
//   - stream.go: opening of input and output streams, where "-" selects
//     stdin/stdout and .gz / .zst files are (de)compressed transparently.
package common
