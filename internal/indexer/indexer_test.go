package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/checksum"
	"github.com/starford/xq/internal/index"
	"github.com/starford/xq/internal/query"
	"github.com/starford/xq/internal/storage"
	"github.com/starford/xq/internal/testutil"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newIndexer(t *testing.T, opts ...Option) (*Indexer, *index.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(db, storage.NewFS(), testutil.Logger(), opts...), db
}

func titles(t *testing.T, db *index.DB, q string) []string {
	t.Helper()
	compiled, err := query.Compile(q)
	if err != nil {
		t.Fatal(err)
	}
	res, err := db.Search(context.Background(), compiled)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, h := range res.Hits {
		out = append(out, h.Title)
	}
	return out
}

func TestUpdate_IndexesNewFiles(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{
		"a.md":     testutil.Note("Alpha", "first note", "go"),
		"sub/b.md": testutil.Note("Beta", "second note"),
	})
	idx, db := newIndexer(t)

	sum, err := idx.UpdatePattern(context.Background(), dir)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if sum.Scanned != 2 || sum.Indexed != 2 || sum.Commits != 1 || sum.Generation != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if got := titles(t, db, "note"); len(got) != 2 {
		t.Errorf("search = %v", got)
	}

	doc, err := db.GetStored(context.Background(), checksum.DocID(filepath.Join(dir, "a.md")))
	if err != nil {
		t.Fatal(err)
	}
	if !doc.LastIndexedAt.Equal(fixedNow) {
		t.Errorf("last_indexed_at = %v", doc.LastIndexedAt)
	}
}

func TestUpdate_NoChangesNoNewGeneration(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{
		"a.md": testutil.Note("Alpha", "first"),
		"b.md": testutil.Note("Beta", "second"),
	})
	idx, _ := newIndexer(t)
	ctx := context.Background()

	first, err := idx.UpdatePattern(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := idx.UpdatePattern(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if second.Indexed != 0 || second.Unchanged != 2 || second.Commits != 0 {
		t.Errorf("second pass = %+v", second)
	}
	if second.Generation != first.Generation {
		t.Errorf("generation moved from %d to %d without changes", first.Generation, second.Generation)
	}
}

func TestUpdate_ReindexesChangedFile(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{"a.md": testutil.Note("Alpha", "oldword")})
	idx, db := newIndexer(t)
	ctx := context.Background()

	if _, err := idx.UpdatePattern(ctx, dir); err != nil {
		t.Fatal(err)
	}
	testutil.WriteNote(t, dir, "a.md", testutil.Note("Alpha", "newword"))
	sum, err := idx.UpdatePattern(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Indexed != 1 || sum.Generation != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if got := titles(t, db, "oldword"); len(got) != 0 {
		t.Errorf("stale postings: %v", got)
	}
	if got := titles(t, db, "newword"); len(got) != 1 {
		t.Errorf("new postings missing: %v", got)
	}
}

func TestUpdate_BadFilesDoNotAbortPass(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{
		"good.md":      testutil.Note("Good", "fine"),
		"plain.md":     "# no frontmatter\n",
		"broken.md":    "---\ntitle: [oops\n---\n",
		"untitled.md":  "---\ntags: [x]\n---\nbody\n",
		"also-good.md": testutil.Note("Also good", "fine"),
	})
	idx, db := newIndexer(t)
	missing := filepath.Join(dir, "vanished.md")

	paths, err := storage.NewFS().Expand(dir)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := idx.Update(context.Background(), append(paths, missing))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if sum.Indexed != 2 || len(sum.Skipped) != 4 {
		t.Fatalf("summary = %+v", sum)
	}

	kinds := map[string]error{
		"plain.md":    apperr.ErrNoFrontmatter,
		"broken.md":   apperr.ErrMalformedFrontmatter,
		"untitled.md": apperr.ErrMissingField,
		"vanished.md": apperr.ErrIO,
	}
	for _, s := range sum.Skipped {
		want := kinds[filepath.Base(s.Path)]
		if !errors.Is(s.Err, want) {
			t.Errorf("%s: err = %v, want %v", s.Path, s.Err, want)
		}
	}
	if got := titles(t, db, "fine"); len(got) != 2 {
		t.Errorf("good files not indexed: %v", got)
	}
}

func TestUpdate_IndexPlain(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{"scratch.md": "just some words\n"})
	idx, db := newIndexer(t, WithIndexPlain(true))

	sum, err := idx.UpdatePattern(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Indexed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if got := titles(t, db, "words"); !reflect.DeepEqual(got, []string{"scratch"}) {
		t.Errorf("search = %v", got)
	}
}

func TestUpdate_OrphansPersistUntilGC(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{
		"keep.md": testutil.Note("Keep", "shared"),
		"gone.md": testutil.Note("Gone", "shared"),
	})
	idx, db := newIndexer(t)
	ctx := context.Background()

	if _, err := idx.UpdatePattern(ctx, dir); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "gone.md")); err != nil {
		t.Fatal(err)
	}
	sum, err := idx.UpdatePattern(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Orphaned != 1 {
		t.Errorf("orphaned = %d, want 1", sum.Orphaned)
	}
	if got := titles(t, db, "shared"); len(got) != 2 {
		t.Errorf("orphaned document must stay searchable before GC: %v", got)
	}
	tracked, _ := db.Tracked(ctx)
	if !tracked[filepath.Join(dir, "gone.md")].Orphaned {
		t.Errorf("gone.md not marked orphaned: %+v", tracked)
	}

	again, err := idx.UpdatePattern(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if again.Commits != 0 {
		t.Errorf("re-orphaning an orphan should not commit: %+v", again)
	}

	gc, err := idx.GC(ctx)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if gc.Removed != 1 {
		t.Errorf("removed = %d, want 1", gc.Removed)
	}
	if got := titles(t, db, "shared"); !reflect.DeepEqual(got, []string{"Keep"}) {
		t.Errorf("after GC = %v", got)
	}
	tracked, _ = db.Tracked(ctx)
	if _, ok := tracked[filepath.Join(dir, "gone.md")]; ok {
		t.Error("GC left the tracked record behind")
	}
}

func TestGC_RemovesMissingFilesWithoutPriorPass(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{"a.md": testutil.Note("A", "x")})
	idx, db := newIndexer(t)
	ctx := context.Background()

	if _, err := idx.UpdatePattern(ctx, dir); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "a.md")); err != nil {
		t.Fatal(err)
	}
	gc, err := idx.GC(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if gc.Removed != 1 || gc.Generation != 2 {
		t.Errorf("gc = %+v", gc)
	}
	if got := titles(t, db, ""); len(got) != 0 {
		t.Errorf("documents left: %v", got)
	}
}

func TestGC_KeepsFilesOrphanedByNarrowerPasses(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteNote(t, filepath.Join(dir, "a"), "one.md", testutil.Note("A one", "x"))
	testutil.WriteNote(t, filepath.Join(dir, "b"), "two.md", testutil.Note("B two", "x"))
	idx, db := newIndexer(t)
	ctx := context.Background()

	if _, err := idx.UpdatePattern(ctx, filepath.Join(dir, "a")); err != nil {
		t.Fatal(err)
	}
	sum, err := idx.UpdatePattern(ctx, filepath.Join(dir, "b"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Orphaned != 1 {
		t.Fatalf("orphaned = %d, want 1", sum.Orphaned)
	}

	gc, err := idx.GC(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if gc.Removed != 0 || gc.Restored != 1 {
		t.Errorf("gc = %+v", gc)
	}
	if got := titles(t, db, ""); len(got) != 2 {
		t.Errorf("titles after gc = %v", got)
	}
	tracked, _ := db.Tracked(ctx)
	if rec := tracked[filepath.Join(dir, "a", "one.md")]; rec.ID == "" || rec.Orphaned {
		t.Errorf("a/one.md after gc = %+v", rec)
	}

	again, err := idx.GC(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.Removed != 0 || again.Restored != 0 {
		t.Errorf("second gc = %+v", again)
	}
}

func TestUpdate_ConcurrentMatchesSequential(t *testing.T) {
	files := make(map[string]string)
	for n := 0; n < 40; n++ {
		files[fmt.Sprintf("n%02d.md", n)] = testutil.Note(
			fmt.Sprintf("Note %02d", n),
			fmt.Sprintf("common body text number%d shared words", n%7),
			fmt.Sprintf("t%d", n%3))
	}
	dir := testutil.TestNotes(t, files)
	ctx := context.Background()

	concurrent, cdb := newIndexer(t, WithWorkers(8))
	csum, err := concurrent.UpdatePattern(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	sequential, sdb := newIndexer(t, WithWorkers(1), WithBatchSize(1))
	ssum, err := sequential.UpdatePattern(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if csum.Commits != 1 || ssum.Commits != len(files) {
		t.Errorf("commits = %d / %d", csum.Commits, ssum.Commits)
	}

	for _, q := range []string{"", "common", `"shared words"`, "number3", "tag:t1", "-tag:t2 body"} {
		cq, _ := query.Compile(q)
		cres, err := cdb.Search(ctx, cq)
		if err != nil {
			t.Fatal(err)
		}
		sres, err := sdb.Search(ctx, cq)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(cres.Hits, sres.Hits) {
			t.Errorf("%q: hits differ between concurrent and sequential indexing", q)
		}
	}
	for name := range files {
		id := checksum.DocID(filepath.Join(dir, name))
		a, err := cdb.GetStored(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		b, err := sdb.GetStored(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: stored fields differ", name)
		}
	}
}

func TestUpdate_RejectsConcurrentPass(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{"a.md": testutil.Note("A", "x")})
	lockPath := filepath.Join(t.TempDir(), "update.lock")
	idx, _ := newIndexer(t, WithLockFile(lockPath))

	other := flock.New(lockPath)
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}

	if _, err := idx.UpdatePattern(context.Background(), dir); !errors.Is(err, apperr.ErrIndexBusy) {
		t.Errorf("err = %v, want ErrIndexBusy", err)
	}
	if _, err := idx.GC(context.Background()); !errors.Is(err, apperr.ErrIndexBusy) {
		t.Errorf("gc err = %v, want ErrIndexBusy", err)
	}

	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.UpdatePattern(context.Background(), dir); err != nil {
		t.Errorf("after unlock: %v", err)
	}
}

func TestUpdate_CancelledContext(t *testing.T) {
	dir := testutil.TestNotes(t, map[string]string{"a.md": testutil.Note("A", "x")})
	idx, db := newIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := idx.UpdatePattern(ctx, dir); err == nil {
		t.Error("expected an error from a cancelled pass")
	}
	gen, _ := db.Generation(context.Background())
	if gen != 0 {
		t.Errorf("cancelled pass committed generation %d", gen)
	}
}
