package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codeprimate/askmyfiles/internal/chunker"
	"github.com/codeprimate/askmyfiles/internal/engine"
	"github.com/codeprimate/askmyfiles/internal/extract"
	"github.com/codeprimate/askmyfiles/internal/retrieval"
	"github.com/codeprimate/askmyfiles/internal/storage"
)

// fakeEngine returns a deterministic vector per text and counts calls.
type fakeEngine struct {
	calls   atomic.Int32
	version atomic.Int32
	failOn  func(text string) bool
}

func (f *fakeEngine) Chat(context.Context, string, []engine.Message) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeEngine) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.failOn != nil && f.failOn(text) {
		return nil, errors.New("503 service unavailable")
	}
	return []float32{float32(len(text)), float32(f.version.Load()), 1}, nil
}

func (f *fakeEngine) IsRunning(context.Context) bool { return true }

type env struct {
	dir   string
	eng   *fakeEngine
	store *storage.Store
	vs    *retrieval.SQLiteStore
	ix    *Indexer
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil, Options{})
}

// newEnvWith builds an env whose indexer uses extractor and opts. BaseDir,
// Committer and Logger are filled in.
func newEnvWith(t *testing.T, extractor extract.Extractor, opts Options) *env {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	e := &env{dir: t.TempDir(), eng: &fakeEngine{}, store: st, vs: retrieval.NewSQLiteStore(st.DB())}
	opts.BaseDir = e.dir
	opts.Committer = st
	opts.Logger = quietLogger()
	e.ix = New(e.vs, retrieval.NewEmbedder(e.eng, "test-embed"), extractor, opts)
	return e
}

func (e *env) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *env) touch(t *testing.T, name string, d time.Duration) {
	t.Helper()
	path := filepath.Join(e.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mod := info.ModTime().Add(d)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func (e *env) records(t *testing.T, name string) []retrieval.Record {
	t.Helper()
	got, err := e.vs.Get(context.Background(), retrieval.ByDocumentKey(DocumentKey(name)))
	if err != nil {
		t.Fatalf("Get %s: %v", name, err)
	}
	return got
}

func (e *env) run(t *testing.T, ctx context.Context, root string) *Summary {
	t.Helper()
	sum, err := e.ix.Run(ctx, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sum
}

// cycle returns n characters of a repeating alphabet so chunks at different
// offsets differ.
func cycle(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}

func TestRun_DirectoryScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.write(t, "a.txt", cycle(400))
	e.write(t, "b.txt", cycle(1200))

	sum := e.run(t, ctx, e.dir)
	if sum.Indexed != 2 || sum.Records != 4 {
		t.Errorf("Indexed = %d, Records = %d, want 2 and 4", sum.Indexed, sum.Records)
	}
	if len(sum.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(sum.Results))
	}
	if sum.Results[0].Path != "a.txt" || sum.Results[1].Path != "b.txt" {
		t.Errorf("result paths = %q, %q", sum.Results[0].Path, sum.Results[1].Path)
	}

	count, err := e.vs.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Errorf("Count = %d, want 4", count)
	}
	if n := len(e.records(t, "a.txt")); n != 1 {
		t.Errorf("a.txt has %d records, want 1", n)
	}
	if n := len(e.records(t, "b.txt")); n != 3 {
		t.Errorf("b.txt has %d records, want 3", n)
	}

	docs, err := e.ix.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("List returned %d documents, want 2", len(docs))
	}
	if docs[0].DocumentKey == docs[1].DocumentKey {
		t.Error("documents share a key")
	}

	n, err := e.ix.Remove(ctx, filepath.Join(e.dir, "a.txt"))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != 1 {
		t.Errorf("Remove deleted %d records, want 1", n)
	}

	count, err = e.vs.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count after remove = %d, want 3", count)
	}
	for _, r := range e.records(t, "b.txt") {
		if r.SourcePath != "b.txt" {
			t.Errorf("SourcePath = %q, want b.txt", r.SourcePath)
		}
	}
}

func TestRun_UnchangedFileMakesNoEmbeddingCalls(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.write(t, "notes.txt", cycle(1200))

	e.run(t, ctx, e.dir)
	first := e.eng.calls.Load()
	if first != 3 {
		t.Fatalf("first run made %d embedding calls, want 3", first)
	}

	sum := e.run(t, ctx, e.dir)
	if got := e.eng.calls.Load(); got != first {
		t.Errorf("second run made %d more embedding calls", got-first)
	}
	if sum.Skipped != 1 || sum.Results[0].Status != StatusSkipped {
		t.Errorf("Skipped = %d, status = %s, want 1 skipped", sum.Skipped, sum.Results[0].Status)
	}
}

func TestRun_TouchedFileIsReplaced(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.write(t, "notes.txt", cycle(1200))

	e.run(t, ctx, e.dir)
	before := e.records(t, "notes.txt")

	e.eng.version.Store(7)
	e.touch(t, "notes.txt", time.Minute)

	sum := e.run(t, ctx, e.dir)
	if sum.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", sum.Indexed)
	}

	after := e.records(t, "notes.txt")
	if len(after) != len(before) {
		t.Fatalf("got %d records after touch, want %d", len(after), len(before))
	}
	for i := range after {
		if after[i].ID != before[i].ID {
			t.Errorf("record %d ID = %s, want %s", i, after[i].ID, before[i].ID)
		}
		if after[i].Embedding[1] != 7 {
			t.Errorf("record %s kept its old embedding", after[i].ID)
		}
		if !after[i].ModifiedTime.After(before[i].ModifiedTime) {
			t.Errorf("record %s ModifiedTime did not advance", after[i].ID)
		}
	}
}

func TestRun_ShrunkFileLeavesNoOrphans(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.write(t, "notes.txt", cycle(2000))

	e.run(t, ctx, e.dir)
	if n := len(e.records(t, "notes.txt")); n != 5 {
		t.Fatalf("got %d records, want 5", n)
	}

	e.write(t, "notes.txt", cycle(300))
	e.touch(t, "notes.txt", time.Minute)

	e.run(t, ctx, e.dir)
	got := e.records(t, "notes.txt")
	if len(got) != 1 {
		t.Fatalf("got %d records after shrink, want 1", len(got))
	}
	if got[0].SequenceIndex != 1 {
		t.Errorf("SequenceIndex = %d, want 1", got[0].SequenceIndex)
	}
}

func TestRun_SequenceIndexesFollowChunkOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	content := cycle(3000)
	e.write(t, "seven.txt", content)

	chunks := chunker.New().Split(content)
	if len(chunks) != 7 {
		t.Fatalf("got %d chunks, want 7", len(chunks))
	}

	e.run(t, ctx, e.dir)

	got := e.records(t, "seven.txt")
	if len(got) != 7 {
		t.Fatalf("got %d records, want 7", len(got))
	}
	for i, r := range got {
		if r.SequenceIndex != i+1 {
			t.Errorf("record %d SequenceIndex = %d", i, r.SequenceIndex)
		}
		if r.Text != chunks[i] {
			t.Errorf("record %d text differs from chunk", i)
		}
		if want := retrieval.RecordID(DocumentKey("seven.txt"), i+1); r.ID != want {
			t.Errorf("record %d ID = %s, want %s", i, r.ID, want)
		}
	}
}

func TestRun_ZeroOverlapIsHonored(t *testing.T) {
	ctx := context.Background()
	overlap := 0
	e := newEnvWith(t, nil, Options{ChunkSize: 500, Overlap: &overlap})
	e.write(t, "tiles.txt", cycle(1000))

	sum := e.run(t, ctx, e.dir)
	if sum.Records != 2 {
		t.Fatalf("Records = %d, want 2 with no overlap", sum.Records)
	}

	got := e.records(t, "tiles.txt")
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Text+got[1].Text != cycle(1000) {
		t.Error("chunks do not tile the file")
	}
}

func TestRun_DefaultOverlapWhenUnset(t *testing.T) {
	e := newEnvWith(t, nil, Options{ChunkSize: 500})
	e.write(t, "notes.txt", cycle(1000))

	// 500-char windows stepping by 450 need three chunks for 1000 chars.
	sum := e.run(t, context.Background(), e.dir)
	if sum.Records != 3 {
		t.Errorf("Records = %d, want 3 with the default overlap", sum.Records)
	}
}

func TestRun_EmbeddingFailureKeepsPriorRecords(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	content := cycle(2000)
	e.write(t, "c.txt", content)
	e.write(t, "d.txt", cycle(100))

	chunks := chunker.New().Split(content)
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}

	// First run: c.txt has no prior records.
	e.eng.failOn = func(text string) bool { return text == chunks[1] }
	sum := e.run(t, ctx, e.dir)
	if sum.Failed != 1 {
		t.Errorf("Failed = %d, want 1", sum.Failed)
	}
	if sum.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1: the run continues with the next file", sum.Indexed)
	}
	if !errors.Is(sum.Results[0].Err, ErrEmbedding) {
		t.Errorf("err = %v, want ErrEmbedding", sum.Results[0].Err)
	}
	if n := len(e.records(t, "c.txt")); n != 0 {
		t.Errorf("c.txt has %d records after a failed first run", n)
	}

	// Second run succeeds, third run fails again after a touch.
	e.eng.failOn = nil
	e.run(t, ctx, e.dir)
	prior := e.records(t, "c.txt")
	if len(prior) != 5 {
		t.Fatalf("got %d records, want 5", len(prior))
	}

	e.eng.failOn = func(text string) bool { return text == chunks[1] }
	e.eng.version.Store(2)
	e.touch(t, "c.txt", time.Minute)
	sum = e.run(t, ctx, e.dir)
	if sum.Results[0].Status != StatusFailed {
		t.Errorf("status = %s, want failed", sum.Results[0].Status)
	}

	if !reflect.DeepEqual(prior, e.records(t, "c.txt")) {
		t.Error("prior records changed after a failed re-index")
	}
}

func TestRun_UnreadableAndEmptyFilesAreSkipped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.write(t, "blank.txt", "   \n\t")
	e.write(t, "image.bin", string([]byte{0xff, 0xfe, 0x00, 0x81}))
	e.write(t, "ok.txt", "hello")

	sum := e.run(t, ctx, e.dir)
	if len(sum.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(sum.Results))
	}
	if !errors.Is(sum.Results[0].Err, ErrEmptyChunks) {
		t.Errorf("blank.txt err = %v, want ErrEmptyChunks", sum.Results[0].Err)
	}
	if !errors.Is(sum.Results[1].Err, ErrFileRead) {
		t.Errorf("image.bin err = %v, want ErrFileRead", sum.Results[1].Err)
	}
	if sum.Results[2].Status != StatusIndexed {
		t.Errorf("ok.txt status = %s, want indexed", sum.Results[2].Status)
	}
	if sum.Failed != 2 {
		t.Errorf("Failed = %d, want 2", sum.Failed)
	}
}

func TestRun_OversizedFileFails(t *testing.T) {
	e := newEnvWith(t, extract.Files{MaxBytes: 64}, Options{})
	e.write(t, "big.txt", cycle(65))
	e.write(t, "small.txt", cycle(64))

	sum := e.run(t, context.Background(), e.dir)
	if len(sum.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(sum.Results))
	}
	big := sum.Results[0]
	if !errors.Is(big.Err, ErrFileRead) || !errors.Is(big.Err, extract.ErrTooLarge) {
		t.Errorf("big.txt err = %v, want ErrFileRead wrapping ErrTooLarge", big.Err)
	}
	if sum.Results[1].Status != StatusIndexed {
		t.Errorf("small.txt status = %s, want indexed", sum.Results[1].Status)
	}
	if n := len(e.records(t, "big.txt")); n != 0 {
		t.Errorf("big.txt has %d records, want 0", n)
	}
}

func TestRun_IgnoreFile(t *testing.T) {
	e := newEnv(t)
	e.write(t, ".gitignore", "secret\n\\.gitignore$\n")
	e.write(t, "secret/keys.txt", "hunter2")
	e.write(t, "public.txt", "hello")

	sum := e.run(t, context.Background(), e.dir)
	if len(sum.Results) != 1 || sum.Results[0].Path != "public.txt" {
		t.Errorf("results = %+v, want only public.txt", sum.Results)
	}
}

func TestRun_SingleFileRoot(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "docs/one.txt", "just one")
	e.write(t, "docs/two.txt", "not this one")

	sum := e.run(t, context.Background(), path)
	if len(sum.Results) != 1 || sum.Results[0].Path != "docs/one.txt" {
		t.Errorf("results = %+v, want only docs/one.txt", sum.Results)
	}
}

func TestRun_RecordsRunOnlyWhenChanged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.write(t, "a.txt", "alpha")

	sum := e.run(t, ctx, e.dir)
	last, err := e.store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if last.ID != sum.RunID || last.Indexed != 1 {
		t.Errorf("last run = %+v, want %s with 1 indexed", last, sum.RunID)
	}

	second := e.run(t, ctx, e.dir)
	if second.RunID == sum.RunID {
		t.Error("second run reused the run ID")
	}
	last, err = e.store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if last.ID != sum.RunID {
		t.Errorf("last run = %s, want %s: an all-skipped run is not recorded", last.ID, sum.RunID)
	}
}

func TestRun_OnResultCallback(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.txt", "alpha")
	e.write(t, "b.txt", "beta")

	var seen []string
	e.ix.opts.OnResult = func(r Result) { seen = append(seen, fmt.Sprintf("%s:%s", r.Path, r.Status)) }

	e.run(t, context.Background(), e.dir)
	want := []string{"a.txt:indexed", "b.txt:indexed"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("OnResult saw %v, want %v", seen, want)
	}
}

// brokenStore fails every read.
type brokenStore struct {
	retrieval.VectorStore
	gets int
}

func (b *brokenStore) Get(context.Context, retrieval.Predicate) ([]retrieval.Record, error) {
	b.gets++
	return nil, errors.New("disk I/O error")
}

func TestRun_StoreFailureAbortsRun(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	bs := &brokenStore{}
	eng := &fakeEngine{}
	ix := New(bs, retrieval.NewEmbedder(eng, "m"), nil, Options{BaseDir: dir, Logger: quietLogger()})

	sum, err := ix.Run(context.Background(), dir)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if sum == nil {
		t.Fatal("expected a partial summary")
	}
	if len(sum.Results) != 1 {
		t.Errorf("got %d results, want 1", len(sum.Results))
	}
	if bs.gets != 1 {
		t.Errorf("store read %d times, want 1", bs.gets)
	}
	if n := eng.calls.Load(); n != 0 {
		t.Errorf("made %d embedding calls, want 0", n)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.txt", "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.ix.Run(ctx, e.dir); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRun_MissingRoot(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ix.Run(context.Background(), filepath.Join(e.dir, "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestDocumentKey(t *testing.T) {
	if DocumentKey("docs/a.txt") != DocumentKey("docs/a.txt") {
		t.Error("DocumentKey is not stable")
	}
	if DocumentKey("docs/a.txt") == DocumentKey("docs/b.txt") {
		t.Error("distinct paths share a key")
	}
	if n := len(DocumentKey("x")); n != 64 {
		t.Errorf("key length = %d, want 64", n)
	}

	// IDs stay distinct across documents and chunk indexes.
	seen := map[string]bool{}
	for _, path := range []string{"a.txt", "b.txt", "a.txt1"} {
		for seq := 1; seq <= 12; seq++ {
			id := retrieval.RecordID(DocumentKey(path), seq)
			if seen[id] {
				t.Errorf("duplicate id %s", id)
			}
			seen[id] = true
		}
	}
}
