package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local sample cache",
	Long: `Commands for inspecting and clearing the sample cache.

The cache only holds what the API can serve again: clearing it never loses
data, it only makes the next query fetch from the network.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show device and sample counts for each table",
	Example: `  wxstation cache stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		if err := deps.RequireBoltStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Database: %s\n\n", deps.Store.Path())
		printSimpleTable(w, []string{"TABLE", "DEVICES", "SAMPLES", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, fmt.Sprintf("%d", s.Devices), fmt.Sprintf("%d", s.Samples), humanBytes(s.Bytes))
			}
		})

		if !deps.Config.Verbose {
			return nil
		}
		for _, name := range store.AllTables {
			ids, err := deps.Store.Table(name).Devices()
			if err != nil {
				return fmt.Errorf("listing devices in %s: %w", name, err)
			}
			if len(ids) > 0 {
				fmt.Fprintf(w, "\n%s: %s\n", name, strings.Join(ids, ", "))
			}
		}
		return nil
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearTable  string
	cacheClearDevice string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached samples",
	Long: `Delete cached samples from one or all tables, optionally for a single device.

Works on both cache backends. On the bolt backend the file does not shrink
after clearing; run 'wxstation cache compact' to reclaim disk space.`,
	Example: `  wxstation cache clear --all
  wxstation cache clear --table forecast
  wxstation cache clear --device 3f6e-…
  wxstation cache clear --table history --device 3f6e-…`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearTable == "" && cacheClearDevice == "" {
			return fmt.Errorf("specify --all, --table <name> or --device <id>\n\nTables: %s",
				strings.Join(store.AllTables, ", "))
		}

		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		var tables []string
		what := "all tables"
		if cacheClearTable != "" && !cacheClearAll {
			tables = []string{cacheClearTable}
			what = fmt.Sprintf("table %q", cacheClearTable)
		}

		if cacheClearDevice != "" {
			device, err := normaliseDevice(cacheClearDevice)
			if err != nil {
				return err
			}
			if err := deps.ClearDevice(cmd.Context(), device, tables...); err != nil {
				return fmt.Errorf("clearing %s for %s: %w", what, device, err)
			}
			what = fmt.Sprintf("%s for %s", what, device)
		} else if err := deps.ClearCaches(cmd.Context(), tables...); err != nil {
			return fmt.Errorf("clearing %s: %w", what, err)
		}

		if deps.Config.Quiet {
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s\n", what)
		if deps.Store != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "  Run 'wxstation cache compact' to reclaim disk space.")
		}
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the bolt file to reclaim freed disk space",
	Long: `Compact rewrites the bbolt database to a new file, recovering space
freed by prior 'cache clear' operations. Live data is copied to a temporary
file first, then the original is replaced.

Only applies to the bolt backend.`,
	Example: `  wxstation cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		if err := deps.RequireBoltStore(); err != nil {
			return err
		}
		defer deps.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Compacting %s ...\n", deps.Store.Path())

		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		fmt.Fprintf(w, "✓ Compaction complete\n")
		fmt.Fprintf(w, "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(w, "  After:  %s\n", humanBytes(after))
		if saved := before - after; saved > 0 {
			fmt.Fprintf(w, "  Saved:  %s\n", humanBytes(saved))
		} else {
			fmt.Fprintln(w, "  No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear every table")
	cacheClearCmd.Flags().StringVar(&cacheClearTable, "table", "", "clear one table: forecast|history")
	cacheClearCmd.Flags().StringVar(&cacheClearDevice, "device", "", "only clear this device")
}
