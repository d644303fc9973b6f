package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dudoslav/TileDB-Vector-Search/internal/group"
	"github.com/dudoslav/TileDB-Vector-Search/internal/ivfindex"
	"github.com/dudoslav/TileDB-Vector-Search/internal/merge"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
	"github.com/dudoslav/TileDB-Vector-Search/pkg/fileformats"
)

type queryOptions struct {
	uri               string
	source            string
	format            string
	k                 int
	nprobe            int
	memoryBudgetBytes int64
	scanOrder         string
	timestamp         string
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a kNN query against a group",
		Long: `Reads query vectors from --source and prints the k nearest
external ids and distances per row, fusing the base index with the
updates log at --timestamp.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.uri, "uri", "", "group URI (required)")
	cmd.Flags().StringVar(&opts.source, "source", "", "path to the query vector file (required)")
	cmd.Flags().StringVar(&opts.format, "format", "fvecs", "query format: fvecs, f32bin")
	cmd.Flags().IntVar(&opts.k, "k", 10, "number of neighbors to return")
	cmd.Flags().IntVar(&opts.nprobe, "nprobe", 0, "partitions to probe (IVF_FLAT only; 0 probes all)")
	cmd.Flags().Int64Var(&opts.memoryBudgetBytes, "memory-budget", 0, "out-of-core memory budget in bytes (0 is infinite-RAM)")
	cmd.Flags().StringVar(&opts.scanOrder, "scan-order", "query-major", "IVF scan order: query-major, vector-major")
	cmd.Flags().StringVar(&opts.timestamp, "timestamp", "", "time-travel timestamp: empty for latest, an integer, or 'a,b' for a range")
	_ = cmd.MarkFlagRequired("uri")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, opts queryOptions) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	grp, err := openGroup(ctx, store, opts.uri)
	if err != nil {
		return err
	}

	q, err := readQueryFile(opts.source, opts.format)
	if err != nil {
		return err
	}

	ts, err := parseTimestamp(opts.timestamp)
	if err != nil {
		return err
	}

	scanOrder := ivfindex.ScanQueryMajor
	if opts.scanOrder == "vector-major" {
		scanOrder = ivfindex.ScanVectorMajor
	}

	D, I, err := grp.Query(ctx, q, opts.k, ts, group.QueryOptions{
		NProbe:            opts.nprobe,
		MemoryBudgetBytes: opts.memoryBudgetBytes,
		ScanOrder:         scanOrder,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for row := range D {
		fmt.Fprintf(out, "row %d:", row)
		for j := range D[row] {
			fmt.Fprintf(out, " (id=%d dist=%g)", I[row][j], D[row][j])
		}
		fmt.Fprintln(out)
	}
	return nil
}

func readQueryFile(path, format string) (*vecmath.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open query file: %w", err)
	}
	defer f.Close()

	switch format {
	case "fvecs":
		return fileformats.ReadFvecs(f)
	case "f32bin":
		return fileformats.ReadF32Bin(f)
	default:
		return nil, fmt.Errorf("unknown query format %q", format)
	}
}

// parseTimestamp implements the --timestamp flag per §4.F's table: empty
// means latest, a bare integer means "at", and "a,b" means an explicit
// range.
func parseTimestamp(s string) (merge.Timestamp, error) {
	if s == "" {
		return merge.Latest(), nil
	}
	if strings.Contains(s, ",") {
		parts := strings.SplitN(s, ",", 2)
		a, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return merge.Timestamp{}, fmt.Errorf("parse range lower bound: %w", err)
		}
		b, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return merge.Timestamp{}, fmt.Errorf("parse range upper bound: %w", err)
		}
		return merge.Range(a, b), nil
	}
	t, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return merge.Timestamp{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return merge.At(t), nil
}
