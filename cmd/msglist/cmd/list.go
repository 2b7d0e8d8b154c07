package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/msglist/internal/config"
	"github.com/wesm/msglist/internal/mainloop"
	"github.com/wesm/msglist/internal/store"
)

var (
	listView        viewFlags
	listSearch      string
	listFirstUnread bool
	listExpandAll   bool
)

var listCmd = &cobra.Command{
	Use:   "list FOLDER",
	Short: "Print the message list of a folder",
	Long: `Build the message list of a folder once and print its visible rows.

Search expressions use the Gmail-like syntax, for example:
  msglist list INBOX --search 'from:alice is:unread after:2024-01-01'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fc := folderConfig(args[0])

		opts, err := viewOptions(cfg, cmd, &listView)
		if err != nil {
			return err
		}

		var st *store.Store
		if fc.Kind != config.KindMaildir {
			st, err = openStore()
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
		}
		f, err := openFolder(ctx, st, fc)
		if err != nil {
			return err
		}
		defer f.close()

		var errs []error
		loop := mainloop.New()
		defer loop.Close()
		l := newList(loop, opts, func(err error) { errs = append(errs, err) })
		defer func() {
			l.Close()
			loop.RunPending()
		}()

		l.SetFolder(f)
		if listSearch != "" {
			l.SetSearch(listSearch)
		}
		if listExpandAll {
			l.ExpandAll()
		}
		if err := settle(ctx, loop, l); err != nil {
			return err
		}
		if listFirstUnread {
			l.SelectFirstUnread()
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		return writeRows(os.Stdout, newRowFormatter(os.Stdout), l)
	},
}

func init() {
	addViewFlags(listCmd, &listView)
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "search expression")
	listCmd.Flags().BoolVar(&listFirstUnread, "first-unread", false, "put the cursor on the first unread message")
	listCmd.Flags().BoolVar(&listExpandAll, "expand-all", false, "expand every thread")
	rootCmd.AddCommand(listCmd)
}
