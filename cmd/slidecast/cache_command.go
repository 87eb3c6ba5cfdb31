package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"slidecast/internal/store"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the artifact cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-namespace cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			usage, err := s.Usage(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(usage.Namespaces))
			for _, ns := range usage.Namespaces {
				rows = append(rows, []string{
					ns.Namespace,
					fmt.Sprintf("%d", ns.Count),
					formatBytes(ns.TotalBytes),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Namespace", "Artifacts", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %s", formatBytes(usage.TotalBytes))
			if usage.FSBytes > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (filesystem free: %s)", formatBytes(int64(usage.FreeBytes)))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached artifacts, least recently read first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.Entries(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Namespace,
					entry.Key.String() + entry.Ext,
					formatBytes(entry.SizeBytes),
					entry.LastReadAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Namespace", "Artifact", "Size", "Last Read"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var maxGiB int
	var includeRemote bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Evict least recently read artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			s, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if maxGiB == 0 {
				maxGiB = cfg.Cache.MaxGiB
			}
			if !cmd.Flags().Changed("include-remote") {
				includeRemote = cfg.Cache.IncludeRemote
			}

			result, err := s.Prune(cmd.Context(), store.PruneOptions{
				MaxBytes:      int64(maxGiB) << 30,
				IncludeRemote: includeRemote,
				DryRun:        dryRun,
			})
			if err != nil {
				return err
			}

			verb := "Evicted"
			if dryRun {
				verb = "Would evict"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d artifacts, reclaiming %s.\n",
				verb, len(result.Evicted), result.Examined, formatBytes(result.ReclaimedBytes))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxGiB, "max-gib", 0, "Size cap in GiB (defaults to the configured cap)")
	cmd.Flags().BoolVar(&includeRemote, "include-remote", false, "Allow evicting fetched source media")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be evicted without deleting")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "clear [namespace...]",
		Short:     "Delete cached artifacts, optionally limited to namespaces",
		ValidArgs: store.Namespaces,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Clear(cmd.Context(), args...); err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared all namespaces.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared: %v\n", args)
			}
			return nil
		},
	}
}
