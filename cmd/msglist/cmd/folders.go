package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wesm/msglist/internal/config"
	"github.com/wesm/msglist/internal/store"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List configured and stored folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		stored, err := st.ListFolders()
		if err != nil {
			return err
		}
		stats, err := st.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		return writeFolders(os.Stdout, cfg.Folders, stored, stats, st.Path())
	},
}

func capsLabel(trash, junk bool) string {
	switch {
	case trash:
		return "trash"
	case junk:
		return "junk"
	}
	return ""
}

// writeFolders prints configured folders, then stored folders that are not
// configured, then database totals.
func writeFolders(w io.Writer, configured []config.FolderConfig, stored []store.FolderInfo, stats *store.Stats, dbPath string) error {
	counts := make(map[string]int64, len(stored))
	for _, fi := range stored {
		counts[fi.Name] = fi.MessageCount
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tROLE\tMESSAGES\tSCHEDULE")
	seen := make(map[string]bool, len(configured))
	for _, fc := range configured {
		seen[fc.Name] = true
		kind := fc.Kind
		if kind == "" {
			kind = config.KindSQLite
		}
		count := "-"
		if kind == config.KindSQLite {
			count = humanize.Comma(counts[fc.Name])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", fc.Name, kind, capsLabel(fc.IsTrash, fc.IsJunk), count, fc.RefreshSchedule)
	}
	for _, fi := range stored {
		if seen[fi.Name] {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", fi.Name, config.KindSQLite,
			capsLabel(fi.Capabilities.IsTrash, fi.Capabilities.IsJunk), humanize.Comma(fi.MessageCount))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nDatabase: %s\n  Folders:  %s\n  Messages: %s\n  Tags:     %s\n  Size:     %s\n",
		dbPath,
		humanize.Comma(stats.FolderCount),
		humanize.Comma(stats.MessageCount),
		humanize.Comma(stats.TagCount),
		humanize.Bytes(uint64(stats.DatabaseSize)))
	return err
}

func init() {
	rootCmd.AddCommand(foldersCmd)
}
