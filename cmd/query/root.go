package query

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/jstore/cmd/util"
	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/join"
	"github.com/spf13/cobra"
)

var (
	// LookupCmd joins the documents of a list of keys
	LookupCmd = &cobra.Command{
		Use:   "lookup <store> <keys> [output]",
		Short: "Join the documents of the requested keys",
		Long: `Read one key per line from <keys> and write one JSON object per key with the
documents of every declared type to [output] (default stdout). Both may be "-".
Output files ending in .gz or .zst are compressed.`,
		Args:    cobra.RangeArgs(2, 3),
		PreRunE: bindFlags,
		RunE:    runLookup,
	}

	// ExtractRangeCmd joins the documents of an integer key interval
	ExtractRangeCmd = &cobra.Command{
		Use:   "extract-range <store> <min> <max> [output]",
		Short: "Join the documents of all keys in [min, max]",
		Long: `Write one JSON object for every key in the closed interval [min, max] of an
integer keyed store, in ascending key order. The command fails if a key in the
interval has no documents.`,
		Args:    cobra.RangeArgs(3, 4),
		PreRunE: bindFlags,
		RunE:    runExtractRange,
	}

	// InfoCmd prints the declared types and engine metadata of a store
	InfoCmd = &cobra.Command{
		Use:     "info <store>",
		Short:   "Print information about a store as JSON",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindFlags,
		RunE:    runInfo,
	}
)

func init() {
	util.SetupQueryFlags(LookupCmd)
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

// output returns the optional output argument at index i
func output(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return common.StdStream
}

func runLookup(_ *cobra.Command, args []string) error {
	conf := util.GetConfig()
	conf.Store.Location = args[0]
	conf.Store.ReadOnly = true

	opts, err := util.QueryOptions(conf)
	if err != nil {
		return err
	}

	keys, err := common.OpenInput(args[1])
	if err != nil {
		return fmt.Errorf("could not open keys: %w", err)
	}
	defer keys.Close()

	st, err := util.OpenStore(conf.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	out, err := common.CreateOutput(output(args, 2))
	if err != nil {
		return fmt.Errorf("could not create output: %w", err)
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	_, err = join.Lookup(ctx, st, keys, out, opts)
	return util.CloseOutput(out, err)
}

func runExtractRange(_ *cobra.Command, args []string) error {
	conf := util.GetConfig()
	conf.Store.Location = args[0]
	conf.Store.ReadOnly = true

	opts, err := util.QueryOptions(conf)
	if err != nil {
		return err
	}

	min, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid min %q: %w", args[1], err)
	}
	max, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid max %q: %w", args[2], err)
	}

	st, err := util.OpenStore(conf.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	out, err := common.CreateOutput(output(args, 3))
	if err != nil {
		return fmt.Errorf("could not create output: %w", err)
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	_, err = join.ExtractRange(ctx, st, min, max, out, opts)
	return util.CloseOutput(out, err)
}

func runInfo(_ *cobra.Command, args []string) error {
	conf := util.GetConfig()
	conf.Store.Location = args[0]
	conf.Store.ReadOnly = true

	st, err := util.OpenStore(conf.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := st.GetDBInfo()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Location string `json:"location"`
		KeyMode  string `json:"key_mode"`
		db.DatabaseInfo
	}{
		Location:     st.Location(),
		KeyMode:      st.KeyMode().String(),
		DatabaseInfo: info,
	})
}
