package msglist

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/regen"
	"github.com/wesm/msglist/internal/search"
	"github.com/wesm/msglist/internal/testutil"
	"github.com/wesm/msglist/internal/viewstate"
)

func TestList_FlatFolderOrder(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(newRecord("3").Build(), newRecord("1").Build(), newRecord("2").Build())
	fx.open()

	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "2", "3")
	if got := fx.list.Cursor(); got != "" {
		t.Errorf("cursor = %q, want unset", got)
	}
	if len(fx.list.Selected()) != 0 {
		t.Errorf("selected = %v", fx.list.Selected())
	}
	if fx.obs.built != 1 {
		t.Errorf("ListBuilt fired %d times, want 1", fx.obs.built)
	}
	if fx.list.Info() != "" {
		t.Errorf("info = %q", fx.list.Info())
	}
}

func TestList_RemovedCursorMoves(t *testing.T) {
	tests := []struct {
		name     string
		previous bool
		want     string
	}{
		{"selects next", false, "3"},
		{"selects previous", true, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultViewOptions()
			opts.DeleteSelectsPrevious = tt.previous
			fx := newFixture(t, opts)
			fx.add(testutil.Records("1", "2", "3")...)
			fx.open()

			if !fx.list.SetCursor("2") {
				t.Fatal("SetCursor(2) failed")
			}
			fx.folder.Remove("2")
			fx.settle()

			testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "3")
			if got := fx.list.Cursor(); got != tt.want {
				t.Errorf("cursor = %q, want %q", got, tt.want)
			}
			testutil.AssertStrings(t, fx.list.Selected(), tt.want)
		})
	}
}

func TestList_RemovedCursorSkipsHidden(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2", "3", "4")...)
	fx.open()
	fx.list.SetCursor("2")

	// 3 becomes deleted in the same rebuild that drops 2.
	fx.list.Freeze()
	fx.folder.Remove("2")
	if err := fx.folder.SetFlags("3", message.FlagDeleted, 0); err != nil {
		t.Fatal(err)
	}
	fx.loop.RunPending()
	fx.list.Thaw()
	fx.settle()

	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "4")
	if got := fx.list.Cursor(); got != "4" {
		t.Errorf("cursor = %q, want 4", got)
	}
}

func TestList_RemovedLastRowsClamp(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2", "3")...)
	fx.open()
	fx.list.SetCursor("3")

	fx.folder.Remove("1", "2", "3")
	fx.settle()
	if fx.list.Cursor() != "" || fx.list.Count() != 0 {
		t.Errorf("cursor = %q, count = %d", fx.list.Cursor(), fx.list.Count())
	}
	if fx.list.Info() != InfoEmptyFolder {
		t.Errorf("info = %q", fx.list.Info())
	}
}

func TestList_CursorMovedDuringRegen(t *testing.T) {
	tests := []struct {
		name  string
		steps int // loop steps between the removal and the cursor move
		state regen.State
	}{
		{"scheduled", 1, regen.Scheduled},
		{"running", 2, regen.Running},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, DefaultViewOptions())
			fx.add(testutil.Records("1", "2", "3")...)
			fx.open()
			fx.list.SetCursor("1")

			fx.folder.Remove("2")
			for range tt.steps {
				fx.loop.Step()
			}
			if got := fx.list.coord.State(); got != tt.state {
				t.Fatalf("regen state = %v, want %v", got, tt.state)
			}
			if !fx.list.SetCursor("2") {
				t.Fatal("SetCursor(2) failed")
			}
			fx.settle()

			testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "3")
			if got := fx.list.Cursor(); got != "3" {
				t.Errorf("cursor = %q, want 3", got)
			}
			testutil.AssertStrings(t, fx.list.Selected(), "3")
		})
	}
}

func TestList_CursorMoveOverridesSelectDirective(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2", "3")...)
	fx.open()

	fx.list.Regen(regen.Request{})
	fx.list.SelectAll()
	fx.list.SetCursor("2")
	fx.settle()

	if got := fx.list.Cursor(); got != "2" {
		t.Errorf("cursor = %q, want 2", got)
	}
	testutil.AssertStrings(t, fx.list.Selected(), "2")
}

func TestList_TrashRestoreDropsRow(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.folder = folder.NewMemory("trash", folder.Capabilities{IsTrash: true})
	fx.add(
		newRecord("1").WithFlags(message.FlagDeleted).Build(),
		newRecord("2").WithFlags(message.FlagDeleted).Build(),
	)
	fx.open()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "2")

	if err := fx.folder.SetFlags("1", 0, message.FlagDeleted); err != nil {
		t.Fatal(err)
	}
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "2")

	// A full rebuild agrees with the in-place update.
	fx.list.Regen(regen.Request{})
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "2")
}

func TestList_LatestPromotion(t *testing.T) {
	opts := DefaultViewOptions()
	opts.GroupByThreads = true
	opts.ThreadLatest = true
	fx := newFixture(t, opts)
	fx.add(newRecord("A").At(0).Build(), newRecord("B").At(5).ReplyTo("A").Build())
	fx.open()

	if diff := cmp.Diff([]string{"B", ".A"}, fx.shape()); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
}

func TestList_MergesQueuedRequests(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(
		newRecord("1").WithSubject("alpha").Build(),
		newRecord("2").WithSubject("beta").Build(),
	)
	fx.list.SetFolder(fx.folder)
	fx.list.SetSearch("subject:alpha")
	fx.list.SetSearch("subject:beta")
	fx.settle()

	if got := fx.list.Generation(); got != 1 {
		t.Errorf("generation = %d, want 1", got)
	}
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "2")
	if fx.list.Search() != "subject:beta" {
		t.Errorf("search = %q", fx.list.Search())
	}
}

func TestList_NewestSearchWins(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(
		newRecord("1").WithSubject("alpha").Build(),
		newRecord("2").WithSubject("beta").Build(),
	)
	fx.open()

	fx.list.SetSearch("subject:alpha")
	fx.loop.RunPending() // first search starts running
	fx.list.SetSearch("subject:beta")
	fx.settle()

	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "2")
	if fx.list.Info() != "" {
		t.Errorf("info = %q", fx.list.Info())
	}

	fx.list.SetSearch("subject:gamma")
	fx.settle()
	if fx.list.Info() != InfoNoMatch {
		t.Errorf("info = %q, want no-match", fx.list.Info())
	}
}

func TestList_SelectionSurvivesRebuild(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2", "3", "4")...)
	fx.open()

	fx.list.SetCursor("1")
	fx.list.Select("3")
	fx.list.Select("4")
	fx.folder.Remove("1", "4")
	fx.settle()

	testutil.AssertStrings(t, fx.list.Selected(), "3")
	if fx.list.Cursor() == "1" || fx.list.Cursor() == "" {
		t.Errorf("cursor = %q", fx.list.Cursor())
	}
}

func TestList_RegenIsIdempotent(t *testing.T) {
	opts := DefaultViewOptions()
	opts.GroupByThreads = true
	fx := newFixture(t, opts)
	fx.add(
		newRecord("a").At(0).Build(),
		newRecord("b").At(2).ReplyTo("a").Build(),
		newRecord("c").At(1).Build(),
		newRecord("d").At(3).ReplyTo("a", "b").Build(),
	)
	fx.open()
	fx.list.SetCursor("d")

	first := fx.shape()
	fx.list.Regen(regen.Request{})
	fx.settle()
	if diff := cmp.Diff(first, fx.shape()); diff != "" {
		t.Errorf("rebuild changed the tree (-first +second):\n%s", diff)
	}
	if fx.list.Cursor() != "d" {
		t.Errorf("cursor = %q, want d", fx.list.Cursor())
	}
}

func TestList_SelectUIDFallback(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(
		newRecord("1").At(0).Seen().Build(),
		newRecord("2").At(1).Build(),
		newRecord("3").At(2).Build(),
		newRecord("4").At(3).Seen().Build(),
	)
	fx.open()

	fx.list.SelectUID("missing", false)
	if fx.list.Cursor() != "" {
		t.Errorf("cursor without fallback = %q", fx.list.Cursor())
	}

	fx.list.SelectUID("missing", true)
	if fx.list.Cursor() != "2" {
		t.Errorf("cursor = %q, want oldest unread 2", fx.list.Cursor())
	}

	fx.folder.Remove("2", "3")
	fx.settle()
	fx.list.SelectUID("missing", true)
	if fx.list.Cursor() != "4" {
		t.Errorf("cursor = %q, want newest read 4", fx.list.Cursor())
	}
}

func TestList_SelectDirectiveDuringRegen(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2", "3")...)
	fx.list.SetFolder(fx.folder)
	if !fx.list.Busy() {
		t.Fatal("SetFolder did not schedule a rebuild")
	}
	fx.list.SelectUID("3", false)
	fx.settle()

	if fx.list.Cursor() != "3" {
		t.Errorf("cursor = %q, want 3", fx.list.Cursor())
	}

	fx.list.Regen(regen.Request{})
	fx.list.SelectAll()
	fx.settle()
	testutil.AssertStrings(t, fx.list.Selected(), "1", "2", "3")
	if fx.list.Cursor() != "3" {
		t.Errorf("cursor after select all = %q", fx.list.Cursor())
	}
}

func TestList_SelectFirstUnreadAndThread(t *testing.T) {
	opts := DefaultViewOptions()
	opts.GroupByThreads = true
	opts.ThreadFlat = true
	fx := newFixture(t, opts)
	fx.add(
		newRecord("a").At(0).Seen().Build(),
		newRecord("x").At(1).Seen().Build(),
		newRecord("b").At(2).ReplyTo("a").Build(),
	)
	fx.open()

	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "b", "x")
	fx.list.SelectFirstUnread()
	if fx.list.Cursor() != "b" {
		t.Fatalf("cursor = %q, want b", fx.list.Cursor())
	}
	fx.list.SelectThread()
	testutil.AssertStrings(t, fx.list.Selected(), "a", "b")
}

func TestList_FlagChangePatchesInPlace(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2")...)
	fx.open()
	gen := fx.list.Generation()
	built := fx.obs.built

	if err := fx.folder.SetFlags("1", message.FlagSeen, 0); err != nil {
		t.Fatal(err)
	}
	fx.settle()

	if fx.list.Generation() != gen {
		t.Error("flag change triggered a rebuild")
	}
	if !fx.list.Record("1").Seen() {
		t.Error("record not refreshed")
	}
	if len(fx.obs.changed) != 1 {
		t.Errorf("data changed notifications = %d, want 1", len(fx.obs.changed))
	}
	if fx.obs.built != built+1 {
		t.Errorf("ListBuilt after patch = %d, want %d", fx.obs.built, built+1)
	}
}

func TestList_FlagChangeHidesMessage(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2", "3")...)
	fx.open()
	fx.list.SetCursor("2")
	gen := fx.list.Generation()

	if err := fx.folder.SetFlags("2", message.FlagDeleted, 0); err != nil {
		t.Fatal(err)
	}
	fx.settle()

	if fx.list.Generation() == gen {
		t.Fatal("hiding flag change did not rebuild")
	}
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "3")
	if fx.list.Cursor() != "3" {
		t.Errorf("cursor = %q, want 3", fx.list.Cursor())
	}

	// Undeleting brings it back.
	if err := fx.folder.SetFlags("2", 0, message.FlagDeleted); err != nil {
		t.Fatal(err)
	}
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "2", "3")
}

func TestList_ManyChangesRebuild(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions(), WithIncrementalThreshold(2))
	fx.add(testutil.Records("1", "2", "3")...)
	fx.open()
	gen := fx.list.Generation()

	fx.folder.Add(fx.list.Record("1").WithFlags(message.FlagSeen), fx.list.Record("2").WithFlags(message.FlagSeen))
	fx.settle()
	if fx.list.Generation() == gen {
		t.Error("change above threshold did not rebuild")
	}
}

func TestList_CursorKeptOnFolderChangeSearch(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2", "3")...)
	fx.open()
	fx.list.SetSearch("is:unread")
	fx.settle()
	fx.list.SetCursor("2")

	// Reading the message drops it from the search, but not while it
	// is under the cursor.
	fx.list.Freeze()
	if err := fx.folder.SetFlags("2", message.FlagSeen, 0); err != nil {
		t.Fatal(err)
	}
	fx.folder.Add(newRecord("4").At(9).Build())
	fx.loop.RunPending()
	fx.list.Thaw()
	fx.settle()

	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "2", "3", "4")
	if fx.list.Cursor() != "2" {
		t.Errorf("cursor = %q, want 2", fx.list.Cursor())
	}

	// A user search change does not keep it.
	fx.list.SetSearch("is:unread subject:test")
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "3", "4")
}

func TestList_FreezeDefersRegen(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2")...)
	fx.open()
	gen := fx.list.Generation()

	fx.list.Freeze()
	fx.list.SetShowDeleted(true)
	fx.list.Regen(regen.Request{})
	if fx.list.Busy() {
		t.Error("rebuild scheduled while frozen")
	}
	fx.list.Thaw()
	fx.settle()
	if got := fx.list.Generation(); got != gen+1 {
		t.Errorf("generation = %d, want %d", got, gen+1)
	}
}

func TestList_InvalidSearch(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2")...)
	fx.open()

	fx.list.SetSearch(`subject:"broken`)
	fx.settle()
	errs := fx.errors()
	if len(errs) != 1 || !errors.Is(errs[0], search.ErrInvalidExpression) {
		t.Fatalf("errors = %v", errs)
	}
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "2")
	if fx.list.Search() != "" {
		t.Errorf("search = %q", fx.list.Search())
	}

	// A folder that rejects the expression itself leaves the view too.
	fx.folder.SearchError = fmt.Errorf("store: %w", search.ErrInvalidExpression)
	fx.list.SetSearch("from:alice")
	fx.settle()
	if len(fx.errors()) != 2 {
		t.Errorf("errors = %v", fx.errors())
	}
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "1", "2")
	if fx.list.Search() != "" {
		t.Errorf("search after failure = %q", fx.list.Search())
	}
}

func TestList_FolderUnavailable(t *testing.T) {
	fx := newFixture(t, DefaultViewOptions())
	fx.add(testutil.Records("1", "2")...)
	fx.open()
	fx.list.SetCursor("1")

	fx.folder.Close()
	fx.list.Regen(regen.Request{})
	fx.settle()

	errs := fx.errors()
	if len(errs) != 1 || !errors.Is(errs[0], folder.ErrUnavailable) {
		t.Fatalf("errors = %v", errs)
	}
	if fx.list.Cursor() != "" || len(fx.list.Selected()) != 0 {
		t.Errorf("cursor = %q, selected = %v", fx.list.Cursor(), fx.list.Selected())
	}
	if fx.list.Busy() {
		t.Error("list still busy")
	}
}

func TestList_CursorInCollapsedThread(t *testing.T) {
	opts := DefaultViewOptions()
	opts.GroupByThreads = true
	fx := newFixture(t, opts)
	fx.add(newRecord("a").At(0).Build(), newRecord("b").At(1).ReplyTo("a").Build(), newRecord("c").At(2).Build())
	fx.open()

	fx.list.SetCursor("b")
	fx.list.SetExpanded("a", false)
	if fx.list.Cursor() != "a" {
		t.Errorf("cursor = %q, want thread root a", fx.list.Cursor())
	}
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "c")

	// Collapsed state survives a rebuild.
	fx.list.Regen(regen.Request{})
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "c")
	if fx.list.IsExpanded("a") {
		t.Error("thread a expanded after rebuild")
	}
}

func TestList_ExpandStatePersistence(t *testing.T) {
	store := viewstate.NewStore(t.TempDir(), nil)
	opts := DefaultViewOptions()
	opts.GroupByThreads = true
	fx := newFixture(t, opts, WithStateStore(store))
	fx.add(
		newRecord("a").At(0).Build(),
		newRecord("b").At(1).ReplyTo("a").Build(),
		newRecord("c").At(2).Build(),
		newRecord("d").At(3).ReplyTo("c").Build(),
	)
	fx.open()
	fx.list.SetExpanded("a", false)

	other := folder.NewMemory("archive", folder.Capabilities{})
	other.Add(testutil.Records("z")...)
	fx.list.SetFolder(other)
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "z")

	saved, err := store.Load("inbox")
	if err != nil || saved == nil {
		t.Fatalf("saved state = %v, %v", saved, err)
	}

	fx.list.SetFolder(fx.folder)
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "c", "d")

	// A new search starts from defaults; clearing it reloads the saved
	// state.
	fx.list.SetSearch("subject:test")
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "b", "c", "d")
	fx.list.SetSearch("")
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "c", "d")
}

func TestList_ExpandCollapseAll(t *testing.T) {
	store := viewstate.NewStore(t.TempDir(), nil)
	opts := DefaultViewOptions()
	opts.GroupByThreads = true
	fx := newFixture(t, opts, WithStateStore(store))
	fx.add(
		newRecord("a").At(0).Build(),
		newRecord("b").At(1).ReplyTo("a").Build(),
		newRecord("c").At(2).Build(),
		newRecord("d").At(3).ReplyTo("c").Build(),
	)
	fx.open()

	fx.list.CollapseAll()
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "c")

	saved, err := store.Load("inbox")
	if err != nil || saved.Len() != 2 {
		t.Fatalf("saved state = %+v, %v", saved, err)
	}
	for _, s := range saved.Children {
		if s.Expanded {
			t.Errorf("saved %s expanded", s.ID)
		}
	}

	fx.list.ExpandAll()
	fx.settle()
	testutil.AssertStrings(t, fx.list.VisibleUIDs(), "a", "b", "c", "d")
}

func TestList_IndexMatchesTree(t *testing.T) {
	opts := DefaultViewOptions()
	opts.GroupByThreads = true
	fx := newFixture(t, opts)
	fx.add(testutil.Records("1", "2", "3", "4", "5", "6")...)
	fx.add(newRecord("7").At(8).ReplyTo("1").Build(), newRecord("8").At(9).ReplyTo("1", "7").Build())
	fx.open()

	check := func() {
		t.Helper()
		uids := fx.list.UIDs()
		if len(uids) != fx.list.Count() {
			t.Errorf("tree has %d messages, index %d", len(uids), fx.list.Count())
		}
		for _, uid := range uids {
			if !fx.list.ContainsUID(uid) {
				t.Errorf("%s in tree but not indexed", uid)
			}
		}
		for _, uid := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
			if fx.list.ContainsUID(uid) != slices.Contains(uids, uid) {
				t.Errorf("%s indexed = %v, in tree = %v", uid, fx.list.ContainsUID(uid), slices.Contains(uids, uid))
			}
		}
	}
	check()
	fx.folder.Remove("7")
	fx.settle()
	check()
	fx.list.SetSearch("subject:\"subject 3\"")
	fx.settle()
	check()
	fx.list.SetThreaded(false)
	fx.settle()
	check()
}
