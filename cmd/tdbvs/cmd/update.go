package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudoslav/TileDB-Vector-Search/internal/updatelog"
)

type updateOptions struct {
	uri       string
	inserts   []string // "id:v1,v2,v3"
	deletes   []uint64
	timestamp int64
}

func newUpdateCmd() *cobra.Command {
	var opts updateOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Append inserts/deletes/replaces to a group's updates log",
		Long: `Each --insert is "id:v1,v2,...", appending an insert-or-replace
row; each --delete is a bare external id, appending a tombstone. Both
flags are repeatable and combine into a single append at --timestamp.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.uri, "uri", "", "group URI (required)")
	cmd.Flags().StringArrayVar(&opts.inserts, "insert", nil, `insert/replace "id:v1,v2,..." (repeatable)`)
	cmd.Flags().Uint64SliceVar(&opts.deletes, "delete", nil, "external id to delete (repeatable)")
	cmd.Flags().Int64Var(&opts.timestamp, "timestamp", 0, "cell timestamp (0 selects the current wall-clock ms)")
	_ = cmd.MarkFlagRequired("uri")

	return cmd
}

func runUpdate(ctx context.Context, cmd *cobra.Command, opts updateOptions) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	grp, err := openGroup(ctx, store, opts.uri)
	if err != nil {
		return err
	}

	ops := make([]updatelog.Op, 0, len(opts.inserts)+len(opts.deletes))
	for _, spec := range opts.inserts {
		op, err := parseInsertSpec(spec)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	for _, id := range opts.deletes {
		ops = append(ops, updatelog.Op{ExternalID: id})
	}
	if len(ops) == 0 {
		return fmt.Errorf("at least one --insert or --delete is required")
	}

	ts := uint64(opts.timestamp)
	if ts == 0 {
		ts = uint64(time.Now().UnixMilli())
	}

	if err := grp.AppendUpdates(ctx, ops, ts); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "applied %d update(s) to %s at ts=%d\n", len(ops), opts.uri, ts)
	return nil
}

func parseInsertSpec(spec string) (updatelog.Op, error) {
	idPart, vecPart, ok := strings.Cut(spec, ":")
	if !ok {
		return updatelog.Op{}, fmt.Errorf("--insert %q must be \"id:v1,v2,...\"", spec)
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return updatelog.Op{}, fmt.Errorf("--insert %q: parse id: %w", spec, err)
	}

	fields := strings.Split(vecPart, ",")
	vec := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return updatelog.Op{}, fmt.Errorf("--insert %q: parse component %d: %w", spec, i, err)
		}
		vec[i] = float32(v)
	}
	return updatelog.Op{ExternalID: id, Vector: vec}, nil
}
