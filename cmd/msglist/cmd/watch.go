package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/msglist/internal/config"
	"github.com/wesm/msglist/internal/mainloop"
	"github.com/wesm/msglist/internal/maildir"
	"github.com/wesm/msglist/internal/msglist"
	"github.com/wesm/msglist/internal/scheduler"
	"github.com/wesm/msglist/internal/store"
	"github.com/wesm/msglist/internal/tree"
)

var (
	watchView     viewFlags
	watchSearch   string
	watchInterval time.Duration
)

// listPrinter reprints the list after every build.
type listPrinter struct {
	tree.NopObserver
	w    io.Writer
	f    *rowFormatter
	list *msglist.List
}

func (p *listPrinter) ListBuilt() {
	fmt.Fprintln(p.w, p.f.Info("--- "+time.Now().Format(time.TimeOnly)))
	if err := writeRows(p.w, p.f, p.list); err != nil {
		logger.Warn("print list", "error", err)
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch FOLDER",
	Short: "Print the message list of a folder whenever it changes",
	Long: `Keep the message list of a folder up to date and reprint it after every
change. Maildir folders are watched for new, removed and re-flagged
messages. SQLite folders are polled for commits made by other processes,
such as "msglist import". Folders with a refresh_schedule are also
rescanned on that schedule. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		fc := folderConfig(args[0])

		opts, err := viewOptions(cfg, cmd, &watchView)
		if err != nil {
			return err
		}

		var st *store.Store
		if fc.Kind != config.KindMaildir {
			if st, err = openStore(); err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
		}
		f, err := openFolder(ctx, st, fc)
		if err != nil {
			return err
		}
		defer f.close()

		loop := mainloop.New()
		l := newList(loop, opts, func(err error) {
			logger.Error("regenerate list", "folder", fc.Name, "error", err)
		})
		l.AddObserver(&listPrinter{w: os.Stdout, f: newRowFormatter(os.Stdout), list: l})

		interval := watchInterval
		if !cmd.Flags().Changed("interval") && f.sqlite != nil {
			interval = store.DefaultPollInterval
		}
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.watch(ctx, interval); err != nil {
				logger.Error("watch folder", "folder", fc.Name, "error", err)
			}
		}()

		var sched *scheduler.Scheduler
		if fc.RefreshSchedule != "" {
			sched = scheduler.New(func(ctx context.Context, name string) error {
				return f.rescan(ctx)
			}).WithLogger(logger)
			if err := sched.AddFolder(fc.Name, fc.RefreshSchedule); err != nil {
				cancel()
				wg.Wait()
				return err
			}
			sched.Start()
		}

		l.SetFolder(f)
		if watchSearch != "" {
			l.SetSearch(watchSearch)
		}

		err = loop.Run(ctx)

		if sched != nil {
			<-sched.Stop().Done()
		}
		cancel()
		wg.Wait()
		l.Close()
		loop.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	addViewFlags(watchCmd, &watchView)
	watchCmd.Flags().StringVarP(&watchSearch, "search", "s", "", "search expression")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", maildir.DefaultWatchInterval,
		"minimum time between filesystem-triggered rescans, or the poll interval for sqlite folders")
	rootCmd.AddCommand(watchCmd)
}
