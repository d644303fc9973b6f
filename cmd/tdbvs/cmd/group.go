package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Inspect group metadata",
	}
	cmd.AddCommand(newGroupInfoCmd())
	return cmd
}

func newGroupInfoCmd() *cobra.Command {
	var uri string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print a group's metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupInfo(cmd.Context(), cmd, uri)
		},
	}

	cmd.Flags().StringVar(&uri, "uri", "", "group URI (required)")
	_ = cmd.MarkFlagRequired("uri")

	return cmd
}

func runGroupInfo(ctx context.Context, cmd *cobra.Command, uri string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	grp, err := openGroup(ctx, store, uri)
	if err != nil {
		return err
	}

	meta := grp.MetadataMap()
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %s\n", k, meta[k])
	}
	return nil
}
