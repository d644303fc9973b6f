package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudoslav/TileDB-Vector-Search/internal/group"
	"github.com/dudoslav/TileDB-Vector-Search/internal/ingest"
	"github.com/dudoslav/TileDB-Vector-Search/internal/progress"
	"github.com/dudoslav/TileDB-Vector-Search/internal/storage"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdbconfig"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
	"github.com/dudoslav/TileDB-Vector-Search/pkg/fileformats"
)

type ingestOptions struct {
	uri        string
	source     string
	format     string
	indexType  string
	partitions int
	dtype      string
	create     bool
	timestamp  int64
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion pipeline against a group",
		Long: `Trains (for IVF_FLAT) and writes a new immutable base snapshot
from a source vector file, publishing it as the group's new latest
ingestion.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.uri, "uri", "", "group URI (required)")
	cmd.Flags().StringVar(&opts.source, "source", "", "path to the source vector file (required)")
	cmd.Flags().StringVar(&opts.format, "format", "fvecs", "source format: fvecs, u8bin, f32bin")
	cmd.Flags().StringVar(&opts.indexType, "type", "flat", "index type for a newly-created group: flat, ivf_flat")
	cmd.Flags().IntVar(&opts.partitions, "partitions", 0, "partition count (IVF_FLAT only; 0 uses the config default)")
	cmd.Flags().StringVar(&opts.dtype, "dtype", "", "base element type override: f32, u8, i8 (defaults to the source format's natural type)")
	cmd.Flags().BoolVar(&opts.create, "create", false, "create the group if it does not already exist")
	cmd.Flags().Int64Var(&opts.timestamp, "timestamp", 0, "ingestion timestamp (0 selects the current wall-clock ms)")
	_ = cmd.MarkFlagRequired("uri")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, opts ingestOptions) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	vectors, err := readSourceFile(opts.source, opts.format)
	if err != nil {
		return err
	}
	if opts.dtype != "" {
		kind, err := parseKind(opts.dtype)
		if err != nil {
			return err
		}
		if kind != vectors.Kind {
			converted := vecmath.NewMatrix(kind, vectors.Rows, vectors.Cols)
			for i := 0; i < vectors.Rows; i++ {
				converted.SetRow(i, vectors.Row(i))
			}
			vectors = converted
		}
	}

	grp, err := loadOrCreateGroup(ctx, store, opts, vectors)
	if err != nil {
		return err
	}

	cfg := tdbconfig.NewConfig()
	partitions := opts.partitions
	if partitions <= 0 {
		partitions = cfg.IVF.Partitions
	}

	ts := uint64(opts.timestamp)
	if ts == 0 {
		ts = uint64(time.Now().UnixMilli())
	}

	reporter := progress.NewAuto(cmd.OutOrStderr())
	pipe := ingest.New(grp, reporter)
	resultTS, err := pipe.Run(ctx, ingest.Source{Vectors: vectors}, ts, ingest.Options{
		Partitions:              partitions,
		AssignWorkers:           cfg.IVF.AssignWorkers,
		InputVectorsPerWorkItem: 4096,
		Train: ingest.TrainOptions{
			MaxIterations: cfg.KMeans.MaxIterations,
			Tolerance:     cfg.KMeans.Tolerance,
			InitMethod:    cfg.KMeans.InitMethod,
			Seed:          cfg.KMeans.Seed,
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ingested %s at ts=%d\n", opts.uri, resultTS)
	return nil
}

func loadOrCreateGroup(ctx context.Context, store *storage.SQLiteStore, opts ingestOptions, vectors *vecmath.Matrix) (*group.Group, error) {
	grp, err := group.Open(ctx, store, opts.uri)
	if err == nil {
		return grp, nil
	}
	if tdberrors.GetCode(err) != tdberrors.ErrCodeFragmentNotFound {
		return nil, err
	}
	if !opts.create {
		return nil, fmt.Errorf("group %q does not exist (pass --create to create it): %w", opts.uri, err)
	}

	indexType := group.IndexTypeFlat
	if opts.indexType == "ivf_flat" {
		indexType = group.IndexTypeIVFFlat
	}
	return group.Create(ctx, store, opts.uri, group.CreateOptions{
		IndexType:             indexType,
		DType:                 vectors.Kind,
		Dimensions:            vectors.Cols,
		PartitionCacheEntries: 64,
	})
}

func readSourceFile(path, format string) (*vecmath.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	switch format {
	case "fvecs":
		return fileformats.ReadFvecs(f)
	case "u8bin":
		return fileformats.ReadU8Bin(f)
	case "f32bin":
		return fileformats.ReadF32Bin(f)
	default:
		return nil, fmt.Errorf("unknown source format %q", format)
	}
}

func parseKind(s string) (vecmath.Kind, error) {
	switch s {
	case "f32":
		return vecmath.KindF32, nil
	case "u8":
		return vecmath.KindU8, nil
	case "i8":
		return vecmath.KindI8, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}
