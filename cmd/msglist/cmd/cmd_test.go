package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/wesm/msglist/internal/config"
	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/mainloop"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/msglist"
	"github.com/wesm/msglist/internal/store"
	"github.com/wesm/msglist/internal/testutil"
	"github.com/wesm/msglist/internal/testutil/email"
	"github.com/wesm/msglist/internal/thread"
)

// useTestConfig points the package globals at a fresh home directory and
// restores them when the test ends.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	oldCfg, oldLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = oldCfg, oldLogger })

	c, err := config.Load("", t.TempDir())
	testutil.MustNoErr(t, err, "config.Load")
	cfg = c
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return c
}

func TestViewOptions_FlagOverrides(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want func(o *msglist.ViewOptions)
	}{
		{
			name: "defaults from config",
			want: func(o *msglist.ViewOptions) {},
		},
		{
			name: "sort and direction",
			args: []string{"--sort", "subject", "--desc"},
			want: func(o *msglist.ViewOptions) {
				o.Sort = thread.SortSpec{Field: thread.SortSubject, Descending: true}
			},
		},
		{
			name: "explicit false overrides config",
			args: []string{"--threaded=false", "--show-junk"},
			want: func(o *msglist.ViewOptions) {
				o.GroupByThreads = false
				o.ShowJunk = true
			},
		},
		{
			name: "thread modes",
			args: []string{"--thread-subject", "--thread-latest", "--thread-flat", "--show-deleted"},
			want: func(o *msglist.ViewOptions) {
				o.ThreadSubject = true
				o.ThreadLatest = true
				o.ThreadFlat = true
				o.ShowDeleted = true
			},
		},
	}

	c := useTestConfig(t)
	base, err := viewOptions(c, nil, &viewFlags{})
	testutil.MustNoErr(t, err, "viewOptions")
	if !base.GroupByThreads || !base.ExpandedDefault || base.Sort.Field != thread.SortReceived {
		t.Fatalf("unexpected defaults: %+v", base)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v viewFlags
			cmd := &cobra.Command{Use: "test"}
			addViewFlags(cmd, &v)
			testutil.MustNoErr(t, cmd.ParseFlags(tt.args), "ParseFlags")

			got, err := viewOptions(c, cmd, &v)
			testutil.MustNoErr(t, err, "viewOptions")
			want := base
			tt.want(&want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("viewOptions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestViewOptions_UnknownSort(t *testing.T) {
	c := useTestConfig(t)
	var v viewFlags
	cmd := &cobra.Command{Use: "test"}
	addViewFlags(cmd, &v)
	testutil.MustNoErr(t, cmd.ParseFlags([]string{"--sort", "colour"}), "ParseFlags")
	if _, err := viewOptions(c, cmd, &v); err == nil {
		t.Fatal("expected error for unknown sort field")
	}
}

func TestParseFlagNames(t *testing.T) {
	got, err := parseFlagNames([]string{"seen", " Flagged "})
	testutil.MustNoErr(t, err, "parseFlagNames")
	if want := message.FlagSeen | message.FlagFlagged; got != want {
		t.Errorf("flags = %v, want %v", got, want)
	}
	if _, err := parseFlagNames([]string{"urgent"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestNextUID(t *testing.T) {
	tests := []struct {
		uids []string
		want uint64
	}{
		{nil, 1},
		{[]string{"1", "2", "3"}, 4},
		{[]string{"10", "2"}, 11},
		{[]string{"abc", "7"}, 8},
	}
	for _, tt := range tests {
		if got := nextUID(tt.uids); got != tt.want {
			t.Errorf("nextUID(%v) = %d, want %d", tt.uids, got, tt.want)
		}
	}
}

func TestCollectMessageFiles(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a.eml", []byte("x"))
	b := testutil.WriteFile(t, dir, "sub/b.EML", []byte("x"))
	c := testutil.WriteFile(t, dir, "sub/c.mbox", []byte("x"))
	d := testutil.WriteFile(t, dir, "sub/d.emlx", []byte("x"))
	testutil.WriteFile(t, dir, "sub/notes.txt", []byte("x"))
	single := testutil.WriteFile(t, t.TempDir(), "single.msg", []byte("x"))

	got, err := collectMessageFiles([]string{dir, single})
	testutil.MustNoErr(t, err, "collectMessageFiles")
	testutil.AssertStrings(t, got, a, b, c, d, single)

	if _, err := collectMessageFiles([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestImportFiles_MboxAndEmlx(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()
	st, err := openStore()
	testutil.MustNoErr(t, err, "openStore")
	defer st.Close()
	f, err := openFolder(ctx, st, folderConfig("Archive"))
	testutil.MustNoErr(t, err, "openFolder")
	defer f.close()

	dir := t.TempDir()
	one := email.NewMessage().Subject("first").MessageID("<m1@example.com>").Bytes()
	two := email.NewMessage().Subject("second").MessageID("<m2@example.com>").Bytes()
	mboxData := "From a@example.com Tue Mar 5 09:30:00 2024\n" + string(one) +
		"\nFrom a@example.com Tue Mar 5 10:30:00 2024\n" + string(two)
	mboxPath := testutil.WriteFile(t, dir, "export.mbox", []byte(mboxData))

	three := email.NewMessage().Subject("third").MessageID("<m3@example.com>").Bytes()
	// Read and flagged; received 2009-01-01.
	emlxData := fmt.Sprintf("%d\n%s<plist version=\"1.0\"><dict><key>flags</key><integer>17</integer>"+
		"<key>date-received</key><real>252460800</real></dict></plist>", len(three), three)
	emlxPath := testutil.WriteFile(t, dir, "3.emlx", []byte(emlxData))

	n, err := importFiles(ctx, f, []string{mboxPath, emlxPath}, 0)
	testutil.MustNoErr(t, err, "importFiles")
	if n != 3 {
		t.Fatalf("imported %d, want 3", n)
	}

	tests := []struct {
		uid      string
		subject  string
		received time.Time
		flags    message.Flags
	}{
		{"1", "first", time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), 0},
		{"2", "second", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), 0},
		{"3", "third", time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC), message.FlagSeen | message.FlagFlagged},
	}
	for _, tt := range tests {
		rec, err := f.MessageInfo(ctx, tt.uid)
		testutil.MustNoErr(t, err, "MessageInfo "+tt.uid)
		if rec.Subject != tt.subject || !rec.DateReceived.Equal(tt.received) || rec.Flags != tt.flags {
			t.Errorf("uid %s = %q %v %v, want %q %v %v", tt.uid,
				rec.Subject, rec.DateReceived, rec.Flags, tt.subject, tt.received, tt.flags)
		}
	}
}

// writeThread writes a message and a reply to it, the reply one minute
// newer on disk.
func writeThread(t *testing.T, dir string) []string {
	t.Helper()
	root := email.NewMessage().
		From(`"Alice" <alice@example.com>`).
		Subject("Quarterly numbers").
		MessageID("<q1@example.com>").
		Bytes()
	reply := email.NewMessage().
		From("bob@example.com").
		Subject("Re: Quarterly numbers").
		MessageID("<q2@example.com>").
		ReplyTo("<q1@example.com>").
		Bytes()

	paths := []string{
		testutil.WriteFile(t, dir, "1.eml", root),
		testutil.WriteFile(t, dir, "2.eml", reply),
	}
	base := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	for i, p := range paths {
		ts := base.Add(time.Duration(i) * time.Minute)
		testutil.MustNoErr(t, os.Chtimes(p, ts, ts), "chtimes")
	}
	return paths
}

func TestImportFiles_SQLiteThenList(t *testing.T) {
	c := useTestConfig(t)
	ctx := context.Background()

	st, err := openStore()
	testutil.MustNoErr(t, err, "openStore")
	defer st.Close()

	f, err := openFolder(ctx, st, folderConfig("INBOX"))
	testutil.MustNoErr(t, err, "openFolder")
	defer f.close()
	if f.sqlite == nil || !f.Capabilities().SupportsJunk {
		t.Fatalf("INBOX should be a junk-capable sqlite folder")
	}

	files := writeThread(t, t.TempDir())
	n, err := importFiles(ctx, f, files, message.FlagFlagged)
	testutil.MustNoErr(t, err, "importFiles")
	if n != 2 {
		t.Fatalf("imported %d, want 2", n)
	}

	rec, err := f.MessageInfo(ctx, "2")
	testutil.MustNoErr(t, err, "MessageInfo")
	if rec.Subject != "Re: Quarterly numbers" || !rec.Flags.Has(message.FlagFlagged) {
		t.Errorf("record 2 = %+v", rec)
	}
	raw, err := f.sqlite.Raw("1")
	testutil.MustNoErr(t, err, "Raw")
	if !bytes.Contains(raw, []byte("Subject: Quarterly numbers")) {
		t.Errorf("stored source missing subject: %q", raw)
	}

	opts, err := viewOptions(c, nil, &viewFlags{})
	testutil.MustNoErr(t, err, "viewOptions")
	loop := mainloop.New()
	defer loop.Close()
	var errs []error
	l := newList(loop, opts, func(err error) { errs = append(errs, err) })
	defer l.Close()

	l.SetFolder(f)
	testutil.MustNoErr(t, settle(ctx, loop, l), "settle")
	if len(errs) > 0 {
		t.Fatalf("regeneration errors: %v", errs)
	}

	type shape struct {
		UID         string
		Depth       int
		HasChildren bool
	}
	var got []shape
	for _, row := range l.Rows() {
		got = append(got, shape{row.UID, row.Depth, row.HasChildren})
	}
	want := []shape{{"1", 0, true}, {"2", 1, false}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	var out bytes.Buffer
	testutil.MustNoErr(t, writeRows(&out, newRowFormatter(&out), l), "writeRows")
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 || lines[2] != "2 messages" {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(lines[0], "Alice") || !strings.Contains(lines[0], "- Quarterly numbers") {
		t.Errorf("root line = %q", lines[0])
	}
}

func TestImportFiles_Maildir(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()
	fc := config.FolderConfig{Name: "Local", Kind: config.KindMaildir, Path: testutil.NewMaildir(t)}

	f, err := openFolder(ctx, nil, fc)
	testutil.MustNoErr(t, err, "openFolder")
	defer f.close()
	if f.md == nil || f.Capabilities().SupportsJunk {
		t.Fatalf("maildir folder should not support junk")
	}

	n, err := importFiles(ctx, f, writeThread(t, t.TempDir()), 0)
	testutil.MustNoErr(t, err, "importFiles")
	if n != 2 {
		t.Fatalf("imported %d, want 2", n)
	}
	uids, err := f.UIDs(ctx)
	testutil.MustNoErr(t, err, "UIDs")
	if len(uids) != 2 {
		t.Errorf("maildir holds %d messages, want 2", len(uids))
	}
}

func TestOpenFolder_SQLiteNeedsStore(t *testing.T) {
	useTestConfig(t)
	if _, err := openFolder(context.Background(), nil, folderConfig("INBOX")); err == nil {
		t.Fatal("expected error without a database")
	}
}

func TestOpenedFolder_RescanSQLiteSeesImports(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()
	st, err := openStore()
	testutil.MustNoErr(t, err, "openStore")
	defer st.Close()
	f, err := openFolder(ctx, st, folderConfig("INBOX"))
	testutil.MustNoErr(t, err, "openFolder")
	defer f.close()
	testutil.MustNoErr(t, f.rescan(ctx), "first rescan")

	var events []folder.ChangeInfo
	unsubscribe := f.Subscribe(func(ci folder.ChangeInfo) { events = append(events, ci) })
	defer unsubscribe()

	// A second store on the same file plays the importing process.
	other, err := store.Open(st.Path())
	testutil.MustNoErr(t, err, "store.Open")
	defer other.Close()
	of, err := other.Folder("INBOX")
	testutil.MustNoErr(t, err, "Folder")
	testutil.MustNoErr(t, of.Upsert(testutil.NewRecord("1").Build()), "Upsert")

	testutil.MustNoErr(t, f.rescan(ctx), "rescan")
	if len(events) != 1 {
		t.Fatalf("events = %+v, want one", events)
	}
	testutil.AssertStrings(t, events[0].Added, "1")
}

func TestWriteFolders(t *testing.T) {
	configured := []config.FolderConfig{
		{Name: "INBOX"},
		{Name: "Local", Kind: config.KindMaildir, Path: "/mail/local", RefreshSchedule: "*/5 * * * *"},
	}
	stored := []store.FolderInfo{
		{ID: 1, Name: "INBOX", MessageCount: 1234},
		{ID: 2, Name: "Trash", Capabilities: folder.Capabilities{IsTrash: true}, MessageCount: 3},
	}
	stats := &store.Stats{FolderCount: 2, MessageCount: 1237, TagCount: 4, DatabaseSize: 2 << 20}

	var out bytes.Buffer
	testutil.MustNoErr(t, writeFolders(&out, configured, stored, stats, "/data/msglist.db"), "writeFolders")
	got := out.String()

	for _, want := range []string{"INBOX", "1,234", "*/5 * * * *", "Trash", "trash", "1,237", "2.1 MB", "/data/msglist.db"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "INBOX") != 1 {
		t.Errorf("configured stored folder listed twice:\n%s", got)
	}
}
