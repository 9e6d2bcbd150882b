package ocrcache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocr"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
)

func newMemoryCache(t *testing.T, maxEntries int, maxBytes int64) *Cache {
	t.Helper()
	c, err := New(config.CacheConfig{MaxEntries: maxEntries, MaxBytes: maxBytes}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func sampleResult(page int, text string) ocr.Result {
	return ocr.Result{
		Page: page,
		Text: text,
		Words: []ocr.Word{
			{Text: "invoice", Box: ocr.Region{Left: 10, Top: 20, Width: 80, Height: 14}, Confidence: 0.965},
			{Text: "total", Box: ocr.Region{Left: 100, Top: 20, Width: 50, Height: 14}, Confidence: -1},
		},
		Engine: "tesseract/5.3.0",
	}
}

func TestGetAfterPutReturnsIdenticalResult(t *testing.T) {
	c := newMemoryCache(t, 8, 0)
	ctx := context.Background()

	want := sampleResult(3, "invoice total 42.00")
	c.Put(ctx, "fp-1", want)

	got, ok := c.Get(ctx, "fp-1")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("result changed through the cache:\ngot  %+v\nwant %+v", got, want)
	}

	if _, ok := c.Get(ctx, "fp-unknown"); ok {
		t.Error("expected miss for unknown fingerprint")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}
}

func TestGetOrComputeCoalescesConcurrentCallers(t *testing.T) {
	c := newMemoryCache(t, 8, 0)
	ctx := context.Background()

	var computes atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) (ocr.Result, error) {
		if computes.Add(1) == 1 {
			close(started)
		}
		<-release
		return sampleResult(0, "computed once"), nil
	}

	const callers = 8
	results := make([]ocr.Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, errs[0] = c.GetOrCompute(ctx, "fp-shared", compute)
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.GetOrCompute(ctx, "fp-shared", compute)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := computes.Load(); n != 1 {
		t.Fatalf("compute ran %d times, want 1", n)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Text != "computed once" {
			t.Errorf("caller %d got %q", i, results[i].Text)
		}
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := newMemoryCache(t, 8, 0)
	ctx := context.Background()

	boom := errors.New("engine crashed")
	_, _, err := c.GetOrCompute(ctx, "fp-err", func(context.Context) (ocr.Result, error) {
		return ocr.Result{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// A later call must retry the computation.
	res, cached, err := c.GetOrCompute(ctx, "fp-err", func(context.Context) (ocr.Result, error) {
		return sampleResult(0, "second try"), nil
	})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if cached {
		t.Error("second call reported cached, want computed")
	}
	if res.Text != "second try" {
		t.Errorf("res.Text = %q", res.Text)
	}
}

func TestEntryCountBoundEvictsLeastRecentlyUsed(t *testing.T) {
	c := newMemoryCache(t, 2, 0)
	ctx := context.Background()

	c.Put(ctx, "fp-a", sampleResult(0, "a"))
	c.Put(ctx, "fp-b", sampleResult(1, "b"))
	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get(ctx, "fp-a"); !ok {
		t.Fatal("expected hit for fp-a")
	}
	c.Put(ctx, "fp-c", sampleResult(2, "c"))

	if _, ok := c.Get(ctx, "fp-b"); ok {
		t.Error("fp-b should have been evicted")
	}
	if _, ok := c.Get(ctx, "fp-a"); !ok {
		t.Error("fp-a should have survived")
	}
	if _, ok := c.Get(ctx, "fp-c"); !ok {
		t.Error("fp-c should have survived")
	}

	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
	if stats.Entries != 2 {
		t.Errorf("entries = %d, want 2", stats.Entries)
	}
}

func TestByteBoundTrimsOldEntries(t *testing.T) {
	c := newMemoryCache(t, 100, 300)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		res := ocr.Result{Page: i, Text: fmt.Sprintf("page %d body text", i), Engine: "t/1"}
		c.Put(ctx, fmt.Sprintf("fp-%d", i), res)
	}

	stats := c.Stats()
	if stats.Bytes > 300 {
		t.Errorf("bytes = %d, want <= 300", stats.Bytes)
	}
	if stats.Entries == 0 || stats.Entries >= 6 {
		t.Errorf("entries = %d, want partial retention", stats.Entries)
	}
	// The most recent entry always survives the trim.
	if _, ok := c.Get(ctx, "fp-5"); !ok {
		t.Error("most recent entry was evicted")
	}
}

func TestOversizedEntrySkipsMemoryTier(t *testing.T) {
	c := newMemoryCache(t, 100, 64)
	ctx := context.Background()

	big := sampleResult(0, string(make([]byte, 1024)))
	c.Put(ctx, "fp-big", big)

	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d, want 0 for oversized entry", got)
	}
}

func TestBoltStoreRoundTripAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	c, err := New(config.CacheConfig{MaxEntries: 8}, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := sampleResult(2, "durable text")
	c.Put(ctx, "fp-d", want)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh cache over the same directory must serve the entry from disk.
	store2, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	c2, err := New(config.CacheConfig{MaxEntries: 8}, store2, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c2.Close()

	got, ok := c2.Get(ctx, "fp-d")
	if !ok {
		t.Fatal("expected hit from durable tier after restart")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("durable round trip changed the result:\ngot  %+v\nwant %+v", got, want)
	}

	c2.Invalidate(ctx, "fp-d")
	if _, ok := c2.Get(ctx, "fp-d"); ok {
		t.Error("expected miss after invalidate")
	}
	if _, found, err := store2.Get(ctx, "fp-d"); err != nil || found {
		t.Errorf("store still has entry after invalidate (found=%v, err=%v)", found, err)
	}
}

func TestPurgeAllEmptiesBothTiers(t *testing.T) {
	ctx := context.Background()
	store, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	c, err := New(config.CacheConfig{MaxEntries: 8}, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.Put(ctx, "fp-1", sampleResult(0, "one"))
	c.Put(ctx, "fp-2", sampleResult(1, "two"))

	removed, err := c.PurgeAll(ctx)
	if err != nil {
		t.Fatalf("PurgeAll: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d after purge", got)
	}
	if _, ok := c.Get(ctx, "fp-1"); ok {
		t.Error("fp-1 survived purge")
	}
}

// failingStore simulates a broken durable tier.
type failingStore struct{ err error }

func (s *failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, s.err }
func (s *failingStore) Put(context.Context, string, []byte) error         { return s.err }
func (s *failingStore) Delete(context.Context, string) error              { return s.err }
func (s *failingStore) PurgeAll(context.Context) (int, error)             { return 0, s.err }
func (s *failingStore) Count(context.Context) (int, error)                { return 0, s.err }
func (s *failingStore) Ping(context.Context) error                        { return s.err }
func (s *failingStore) Close() error                                      { return nil }

func TestBrokenStoreDegradesToMemoryOnly(t *testing.T) {
	store := &failingStore{err: errors.New("disk on fire")}
	c, err := New(config.CacheConfig{MaxEntries: 8}, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// Every store operation fails, but callers never see it.
	c.Put(ctx, "fp-1", sampleResult(0, "kept in memory"))
	got, ok := c.Get(ctx, "fp-1")
	if !ok || got.Text != "kept in memory" {
		t.Fatalf("memory tier broken: ok=%v res=%+v", ok, got)
	}

	res, cached, err := c.GetOrCompute(ctx, "fp-2", func(context.Context) (ocr.Result, error) {
		return sampleResult(1, "computed"), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if cached || res.Text != "computed" {
		t.Errorf("cached=%v res=%+v", cached, res)
	}

	if got := c.Stats().StoreErrors; got == 0 {
		t.Error("store errors were not counted")
	}
	if err := c.StoreHealthy(ctx); err == nil {
		t.Error("StoreHealthy should report the broken store")
	}
}
