package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudoslav/TileDB-Vector-Search/internal/ingest"
	"github.com/dudoslav/TileDB-Vector-Search/internal/progress"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdbconfig"
)

type consolidateOptions struct {
	uri        string
	partitions int
	timestamp  int64
}

func newConsolidateCmd() *cobra.Command {
	var opts consolidateOptions

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Fold a group's updates log into a fresh base snapshot",
		Long: `Replays the live view (base snapshot merged with the updates
log) through the ingestion pipeline and publishes it as a new base,
emptying the updates log's effective contribution going forward.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsolidate(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.uri, "uri", "", "group URI (required)")
	cmd.Flags().IntVar(&opts.partitions, "partitions", 0, "partition count (IVF_FLAT only; 0 uses the config default)")
	cmd.Flags().Int64Var(&opts.timestamp, "timestamp", 0, "consolidation timestamp (0 selects the current wall-clock ms)")
	_ = cmd.MarkFlagRequired("uri")

	return cmd
}

func runConsolidate(ctx context.Context, cmd *cobra.Command, opts consolidateOptions) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	grp, err := openGroup(ctx, store, opts.uri)
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
	resultTS, err := pipe.ConsolidateUpdates(ctx, ts, ingest.Options{
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

	fmt.Fprintf(cmd.OutOrStdout(), "consolidated %s at ts=%d\n", opts.uri, resultTS)
	return nil
}
