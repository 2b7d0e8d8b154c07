package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/store"
	"github.com/wesm/msglist/internal/testutil"
)

func collect(f *store.Folder) *[]folder.ChangeInfo {
	var events []folder.ChangeInfo
	f.Subscribe(func(ci folder.ChangeInfo) { events = append(events, ci) })
	return &events
}

func TestFolder_RoundTrip(t *testing.T) {
	st := testutil.NewTestStore(t)
	f := testutil.NewTestFolder(t, st, "inbox")
	ctx := context.Background()

	want := testutil.NewRecord("7").
		WithSubject("Quarterly numbers").
		WithFrom("Alice <alice@example.com>").
		WithFlags(message.FlagSeen|message.FlagFlagged).
		WithTag("work", "").
		WithTag("prio", "high").
		ReplyTo("1", "3").
		At(4).
		Build()
	want.To = []string{"bob@example.com", "carol@example.org"}
	testutil.MustNoErr(t, f.Upsert(want), "Upsert")

	got, err := f.MessageInfo(ctx, "7")
	testutil.MustNoErr(t, err, "MessageInfo")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.MessageInfo(ctx, "nope"); !errors.Is(err, folder.ErrNotFound) {
		t.Errorf("MessageInfo(nope) error = %v, want ErrNotFound", err)
	}
}

func TestFolder_Events(t *testing.T) {
	st := testutil.NewTestStore(t)
	f := testutil.NewTestFolder(t, st, "inbox")
	other := testutil.NewTestFolder(t, st, "archive")
	events := collect(f)
	otherEvents := collect(other)

	testutil.MustNoErr(t, f.Upsert(testutil.Records("1", "2")...), "Upsert")
	testutil.MustNoErr(t, f.Upsert(testutil.NewRecord("2").Seen().Build(), testutil.NewRecord("3").Build()), "Upsert")
	testutil.MustNoErr(t, f.SetFlags("1", message.FlagDeleted, 0), "SetFlags")
	testutil.MustNoErr(t, f.SetFlags("1", message.FlagDeleted, 0), "SetFlags no-op")
	testutil.MustNoErr(t, f.Remove("3", "missing"), "Remove")

	want := []folder.ChangeInfo{
		{Added: []string{"1", "2"}},
		{Added: []string{"3"}, Changed: []string{"2"}},
		{Changed: []string{"1"}},
		{Removed: []string{"3"}},
	}
	if diff := cmp.Diff(want, *events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if len(*otherEvents) != 0 {
		t.Errorf("other folder got events: %v", *otherEvents)
	}

	if err := f.SetFlags("missing", message.FlagSeen, 0); !errors.Is(err, folder.ErrNotFound) {
		t.Errorf("SetFlags(missing) error = %v", err)
	}
	uids, err := f.UIDs(context.Background())
	testutil.MustNoErr(t, err, "UIDs")
	testutil.AssertStrings(t, uids, "1", "2")
}

func TestFolder_SortUIDs(t *testing.T) {
	st := testutil.NewTestStore(t)
	f := testutil.NewTestFolder(t, st, "inbox")
	testutil.MustNoErr(t, f.Upsert(
		testutil.NewRecord("10").At(2).Build(),
		testutil.NewRecord("9").At(2).Build(),
		testutil.NewRecord("b").At(1).Build(),
	), "Upsert")

	uids := []string{"unknown", "10", "b", "9"}
	f.SortUIDs(uids)
	testutil.AssertStrings(t, uids, "b", "9", "10", "unknown")
}

func TestFolder_Raw(t *testing.T) {
	st := testutil.NewTestStore(t)
	f := testutil.NewTestFolder(t, st, "inbox")
	testutil.MustNoErr(t, f.Upsert(testutil.Records("1")...), "Upsert")

	raw := []byte("Subject: hi\r\n\r\nbody\r\n")
	testutil.MustNoErr(t, f.SetRaw("1", raw), "SetRaw")
	got, err := f.Raw("1")
	testutil.MustNoErr(t, err, "Raw")
	if string(got) != string(raw) {
		t.Errorf("Raw = %q", got)
	}
	if err := f.SetRaw("2", raw); !errors.Is(err, folder.ErrNotFound) {
		t.Errorf("SetRaw(2) error = %v", err)
	}
	if _, err := f.Raw("2"); !errors.Is(err, folder.ErrNotFound) {
		t.Errorf("Raw(2) error = %v", err)
	}
}

func TestStore_Folders(t *testing.T) {
	st := testutil.NewTestStore(t)
	inbox := testutil.NewTestFolder(t, st, "inbox")
	testutil.MustNoErr(t, inbox.Upsert(testutil.Records("1", "2")...), "Upsert")
	_, err := st.EnsureFolder("Trash", folder.Capabilities{IsTrash: true})
	testutil.MustNoErr(t, err, "EnsureFolder Trash")

	infos, err := st.ListFolders()
	testutil.MustNoErr(t, err, "ListFolders")
	if len(infos) != 2 || infos[0].Name != "Trash" || !infos[0].Capabilities.IsTrash || infos[1].MessageCount != 2 {
		t.Errorf("folders = %+v", infos)
	}

	if _, err := st.Folder("nope"); !errors.Is(err, store.ErrFolderNotFound) {
		t.Errorf("Folder(nope) error = %v", err)
	}

	stats, err := st.GetStats()
	testutil.MustNoErr(t, err, "GetStats")
	if stats.FolderCount != 2 || stats.MessageCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	st := testutil.NewTestStore(t)
	f := testutil.NewTestFolder(t, st, "inbox")
	testutil.MustNoErr(t, f.Upsert(testutil.Records("1")...), "Upsert")
	st.Close()

	if _, err := f.UIDs(context.Background()); !errors.Is(err, folder.ErrUnavailable) {
		t.Errorf("UIDs after close error = %v, want ErrUnavailable", err)
	}
	if _, err := f.MessageInfo(context.Background(), "1"); !errors.Is(err, folder.ErrUnavailable) {
		t.Errorf("MessageInfo after close error = %v, want ErrUnavailable", err)
	}
}
