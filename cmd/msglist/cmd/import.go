package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wesm/msglist/internal/config"
	"github.com/wesm/msglist/internal/emlx"
	"github.com/wesm/msglist/internal/mbox"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/mime"
	"github.com/wesm/msglist/internal/store"
)

var (
	importSeen  bool
	importFlags []string
)

var importCmd = &cobra.Command{
	Use:   "import FOLDER PATH...",
	Short: "Import messages into a folder",
	Long: `Import messages into a folder from .eml files, Apple Mail .emlx files
and mbox files, or from directories holding them.

SQLite folders store the parsed headers and the compressed source; maildir
folders receive each message as a new delivery. Flags recorded in .emlx
metadata are kept.

Examples:
  msglist import INBOX ~/Downloads/message.eml
  msglist import Archive --flag flagged ~/mail/export/
  msglist import Old ~/Takeout/All\ mail.mbox`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fc := folderConfig(args[0])

		flags, err := parseFlagNames(importFlags)
		if err != nil {
			return err
		}
		if importSeen {
			flags |= message.FlagSeen
		}

		files, err := collectMessageFiles(args[1:])
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

		n, err := importFiles(ctx, f, files, flags)
		fmt.Printf("Imported %s messages from %s files into %s\n",
			humanize.Comma(int64(n)), humanize.Comma(int64(len(files))), fc.Name)
		return err
	},
}

func parseFlagNames(names []string) (message.Flags, error) {
	var flags message.Flags
	for _, name := range names {
		f, ok := message.ParseFlag(name)
		if !ok {
			return 0, fmt.Errorf("unknown flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}

// messageExts are the file types import accepts, keyed by lower-case
// extension.
var messageExts = map[string]bool{".eml": true, ".emlx": true, ".mbox": true, ".mbx": true}

// collectMessageFiles expands directories into the message files they hold.
// Files named explicitly are taken as they are.
func collectMessageFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("source not found: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && messageExts[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
	}
	return files, nil
}

// importItem is one message read from a source file.
type importItem struct {
	raw      []byte
	received time.Time
	flags    message.Flags
}

// readMessages calls fn for every message in the file at path. .mbox
// files hold many messages; .emlx files carry their own flags and dates;
// anything else is a single RFC 5322 message dated by its mtime.
func readMessages(path string, fn func(importItem) error) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mbox", ".mbx":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r := mbox.NewReader(f)
		for {
			m, err := r.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, mbox.ErrMessageTooLarge) {
				logger.Warn("skipping message", "file", path, "error", err)
				continue
			}
			if err != nil {
				return err
			}
			if err := fn(importItem{raw: m.Raw, received: m.Date.UTC()}); err != nil {
				return err
			}
		}
	case ".emlx":
		m, err := emlx.ParseFile(path)
		if err != nil {
			return err
		}
		return fn(importItem{raw: m.Raw, received: m.Received, flags: m.Flags()})
	default:
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return fn(importItem{raw: raw, received: info.ModTime().UTC()})
	}
}

// nextUID returns one more than the largest numeric UID in uids.
func nextUID(uids []string) uint64 {
	var hi uint64
	for _, uid := range uids {
		if n, err := strconv.ParseUint(uid, 10, 64); err == nil && n > hi {
			hi = n
		}
	}
	return hi + 1
}

// importFiles adds every message in files to f and returns how many were
// imported. flags are added to the flags a source carries. It stops at the
// first failure.
func importFiles(ctx context.Context, f *openedFolder, files []string, flags message.Flags) (int, error) {
	var next uint64
	if f.sqlite != nil {
		uids, err := f.UIDs(ctx)
		if err != nil {
			return 0, err
		}
		next = nextUID(uids)
	}

	n := 0
	add := func(path string, it importItem) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.md != nil {
			if err := f.md.Deliver(ctx, it.raw); err != nil {
				return fmt.Errorf("deliver %s: %w", path, err)
			}
			if it.flags|flags != 0 {
				logger.Debug("flags are not applied to maildir deliveries", "file", path)
			}
			n++
			return nil
		}

		uid := strconv.FormatUint(next, 10)
		rec, err := mime.ParseRecord(uid, it.raw, it.flags|flags, it.received)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if err := f.sqlite.Upsert(rec); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
		if err := f.sqlite.SetRaw(uid, it.raw); err != nil {
			return fmt.Errorf("store source of %s: %w", path, err)
		}
		logger.Debug("imported message", "file", path, "uid", uid, "subject", rec.Subject)
		next++
		n++
		return nil
	}

	for _, path := range files {
		err := readMessages(path, func(it importItem) error { return add(path, it) })
		if err != nil {
			return n, fmt.Errorf("import %s: %w", path, err)
		}
	}
	return n, nil
}

func init() {
	importCmd.Flags().BoolVar(&importSeen, "seen", false, "mark imported messages as read")
	importCmd.Flags().StringSliceVar(&importFlags, "flag", nil, "flags to set (seen, flagged, junk, ...)")
	rootCmd.AddCommand(importCmd)
}
