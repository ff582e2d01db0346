package index

import (
	"fmt"
	"path/filepath"

	"github.com/ValentinKolb/jstore/cmd/util"
	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/ingest"
	"github.com/spf13/cobra"
)

var (
	// IndexCmd ingests a single JSON-Lines input as one document type
	IndexCmd = &cobra.Command{
		Use:   "index <type> <input> <store>",
		Short: "Index a JSON-Lines file as one document type",
		Long: `Index every line of <input> as a document of <type> into the store at <store>.
The store is created if it does not exist. <input> may be "-" for stdin, .gz and
.zst files are decompressed on the fly.`,
		Args:    cobra.ExactArgs(3),
		PreRunE: bindFlags,
		RunE:    runIndex,
	}

	// IndexManyCmd ingests all inputs listed in a manifest concurrently
	IndexManyCmd = &cobra.Command{
		Use:   "index-many <manifest> <store>",
		Short: "Index many JSON-Lines files concurrently",
		Long: `Index all inputs listed in <manifest> (one path per line, "#" starts a comment)
into the store at <store>. The document type of an input is its file name without
the .json, .jsonl, .gz and .zst extensions. Relative paths are resolved against
the directory of the manifest.`,
		Args:    cobra.ExactArgs(2),
		PreRunE: bindFlags,
		RunE:    runIndexMany,
	}
)

func init() {
	util.SetupIngestFlags(IndexCmd)
	util.SetupIngestFlags(IndexManyCmd)
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func runIndex(_ *cobra.Command, args []string) error {
	docType, input, location := args[0], args[1], args[2]
	if err := document.ValidateType(docType); err != nil {
		return err
	}

	conf := util.GetConfig()
	conf.Store.Location = location

	st, err := util.OpenStore(conf.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := util.SignalContext()
	defer cancel()

	n, err := ingest.IndexStream(ctx, st, ingest.FileSource(docType, input), util.IngestOptions(conf))
	if err != nil {
		return err
	}
	ingest.Logger.Infof("indexed %d documents of type %s from %s", n, docType, input)
	return st.Close()
}

func runIndexMany(_ *cobra.Command, args []string) error {
	manifestPath, location := args[0], args[1]

	conf := util.GetConfig()
	conf.Store.Location = location

	manifest, err := common.OpenInput(manifestPath)
	if err != nil {
		return fmt.Errorf("could not open manifest: %w", err)
	}
	defer manifest.Close()

	st, err := util.OpenStore(conf.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := util.SignalContext()
	defer cancel()

	opts := util.IngestOptions(conf)
	if manifestPath != common.StdStream {
		opts.ManifestDir = filepath.Dir(manifestPath)
	}

	n, err := ingest.IndexManifest(ctx, st, manifest, opts)
	if err != nil {
		return err
	}
	ingest.Logger.Infof("indexed %d documents from %s", n, manifestPath)
	return st.Close()
}
