package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/store"
	"github.com/wesm/msglist/internal/testutil"
)

// sharedFolders opens the same folder through two stores on one database
// file, standing in for two processes.
func sharedFolders(t *testing.T) (mine, theirs *store.Folder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shared.db")
	var folders []*store.Folder
	for range 2 {
		st, err := store.Open(path)
		testutil.MustNoErr(t, err, "Open")
		t.Cleanup(func() { st.Close() })
		f, err := st.EnsureFolder("inbox", folder.Capabilities{SupportsJunk: true})
		testutil.MustNoErr(t, err, "EnsureFolder")
		folders = append(folders, f)
	}
	return folders[0], folders[1]
}

func TestFolder_RescanSeesOtherConnections(t *testing.T) {
	ctx := context.Background()
	mine, theirs := sharedFolders(t)
	testutil.MustNoErr(t, mine.Upsert(testutil.Records("1", "2")...), "Upsert")

	ci, err := mine.Rescan(ctx)
	testutil.MustNoErr(t, err, "first Rescan")
	if !ci.IsEmpty() {
		t.Errorf("first rescan reported %+v", ci)
	}

	events := collect(mine)
	testutil.MustNoErr(t, theirs.Upsert(testutil.NewRecord("3").Build()), "Upsert 3")
	testutil.MustNoErr(t, theirs.SetFlags("1", message.FlagSeen, 0), "SetFlags 1")
	testutil.MustNoErr(t, theirs.Remove("2"), "Remove 2")
	if len(*events) != 0 {
		t.Fatalf("events before rescan: %+v", *events)
	}

	ci, err = mine.Rescan(ctx)
	testutil.MustNoErr(t, err, "Rescan")
	want := folder.ChangeInfo{Added: []string{"3"}, Removed: []string{"2"}, Changed: []string{"1"}}
	if diff := cmp.Diff(want, ci); diff != "" {
		t.Errorf("rescan (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]folder.ChangeInfo{want}, *events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestFolder_RescanSkipsOwnChanges(t *testing.T) {
	ctx := context.Background()
	mine, _ := sharedFolders(t)
	testutil.MustNoErr(t, mine.Upsert(testutil.Records("1", "2")...), "Upsert")
	_, err := mine.Rescan(ctx)
	testutil.MustNoErr(t, err, "first Rescan")

	testutil.MustNoErr(t, mine.Upsert(testutil.NewRecord("3").Build()), "Upsert 3")
	testutil.MustNoErr(t, mine.SetFlags("1", message.FlagFlagged, 0), "SetFlags 1")
	testutil.MustNoErr(t, mine.Remove("2"), "Remove 2")

	ci, err := mine.Rescan(ctx)
	testutil.MustNoErr(t, err, "Rescan")
	if !ci.IsEmpty() {
		t.Errorf("rescan repeated own changes: %+v", ci)
	}
}

func TestFolder_WatchPollsForCommits(t *testing.T) {
	mine, theirs := sharedFolders(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := mine.Rescan(ctx)
	testutil.MustNoErr(t, err, "Rescan")

	got := make(chan folder.ChangeInfo, 8)
	unsubscribe := mine.Subscribe(func(ci folder.ChangeInfo) { got <- ci })
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- mine.Watch(ctx, 10*time.Millisecond) }()

	testutil.MustNoErr(t, theirs.Upsert(testutil.NewRecord("9").Build()), "Upsert")
	select {
	case ci := <-got:
		testutil.AssertStrings(t, ci.Added, "9")
	case <-time.After(5 * time.Second):
		t.Fatal("no change event from watch")
	}

	cancel()
	select {
	case err := <-done:
		testutil.MustNoErr(t, err, "Watch")
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
