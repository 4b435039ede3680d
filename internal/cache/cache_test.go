package cache

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testCache runs the shared contract against a Cache implementation.
func testCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := c.Get(ctx, Key("test", "missing"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if ok {
			t.Error("Get() on empty cache should miss")
		}
	})

	t.Run("SetGet", func(t *testing.T) {
		key := Key("test", "balance", "addr1")
		if err := c.Set(ctx, key, []byte(`{"lamports":5}`), time.Minute); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		got, ok, err := c.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get() = %v, %v", ok, err)
		}
		if string(got) != `{"lamports":5}` {
			t.Errorf("Get() = %s", got)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		key := Key("test", "short")
		if err := c.Set(ctx, key, []byte("x"), 50*time.Millisecond); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
		if _, ok, _ := c.Get(ctx, key); ok {
			t.Error("entry should expire after its ttl")
		}
	})
}

func TestMemory_Contract(t *testing.T) {
	testCache(t, NewMemory(16, time.Minute))
}

func TestRedis_Contract(t *testing.T) {
	addr := os.Getenv("KLINGPAY_TEST_REDIS")
	if addr == "" {
		t.Skip("KLINGPAY_TEST_REDIS not set")
	}
	r, err := NewRedis(context.Background(), RedisOptions{Addr: addr, Prefix: "klingpay-test:"})
	if err != nil {
		t.Fatalf("NewRedis() error: %v", err)
	}
	defer r.Close()
	testCache(t, r)
}

func TestMemory_EvictsLRU(t *testing.T) {
	m := NewMemory(2, time.Minute)
	ctx := context.Background()
	m.Set(ctx, "a", []byte("1"), 0)
	m.Set(ctx, "b", []byte("2"), 0)
	m.Get(ctx, "a")
	m.Set(ctx, "c", []byte("3"), 0)

	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("least recently used entry should be evicted")
	}
	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Error("recently used entry should survive")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestMemory_PerEntryTTL(t *testing.T) {
	m := NewMemory(8, time.Hour)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "quote", []byte("q"), 10*time.Second)
	m.Set(ctx, "price", []byte("p"), time.Minute)

	now = now.Add(30 * time.Second)
	if _, ok, _ := m.Get(ctx, "quote"); ok {
		t.Error("quote should have expired")
	}
	if _, ok, _ := m.Get(ctx, "price"); !ok {
		t.Error("price should still be live")
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory(4, time.Minute)
	ctx := context.Background()
	v := []byte("abc")
	m.Set(ctx, "k", v, 0)
	v[0] = 'z'
	got, _, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("cached value mutated: %q", got)
	}
}

func TestKey(t *testing.T) {
	k1 := Key("quote", "So11", "EPjF", "1000")
	k2 := Key("quote", "So11", "EPjF", "1000")
	if k1 != k2 {
		t.Error("Key() should be deterministic")
	}
	if !strings.HasPrefix(k1, "quote:") || len(k1) != len("quote:")+32 {
		t.Errorf("Key() = %q", k1)
	}
	if Key("q", "ab", "c") == Key("q", "a", "bc") {
		t.Error("Key() parts must be length-delimited")
	}
}

type quote struct {
	Out string `json:"out"`
}

func TestGetOrLoad(t *testing.T) {
	c := NewMemory(8, time.Minute)
	ctx := context.Background()
	var loads atomic.Int32
	load := func(context.Context) (quote, error) {
		loads.Add(1)
		return quote{Out: "42"}, nil
	}

	for i := 0; i < 3; i++ {
		q, err := GetOrLoad(ctx, c, Key("quote", "x"), time.Minute, load)
		if err != nil {
			t.Fatalf("GetOrLoad() error: %v", err)
		}
		if q.Out != "42" {
			t.Errorf("quote = %+v", q)
		}
	}
	if loads.Load() != 1 {
		t.Errorf("load called %d times, want 1", loads.Load())
	}
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	c := NewMemory(8, time.Minute)
	ctx := context.Background()
	boom := errors.New("upstream down")

	_, err := GetOrLoad(ctx, c, "price:x", time.Minute, func(context.Context) (quote, error) {
		return quote{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if _, ok, _ := c.Get(ctx, "price:x"); ok {
		t.Error("failed loads must not be cached")
	}
}

func TestGetOrLoad_NilCacheAndZeroTTL(t *testing.T) {
	var loads int
	load := func(context.Context) (int, error) { loads++; return loads, nil }

	GetOrLoad[int](context.Background(), nil, "k:1", time.Minute, load)
	c := NewMemory(8, time.Minute)
	GetOrLoad(context.Background(), c, "k:1", 0, load)
	GetOrLoad(context.Background(), c, "k:1", 0, load)
	if loads != 3 {
		t.Errorf("loads = %d, want 3 (no caching)", loads)
	}
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}

func TestGetOrLoad_CacheErrorsIgnored(t *testing.T) {
	v, err := GetOrLoad(context.Background(), failingCache{}, "k:1", time.Minute,
		func(context.Context) (string, error) { return "fresh", nil })
	if err != nil || v != "fresh" {
		t.Errorf("GetOrLoad() = %q, %v; want fresh, nil", v, err)
	}
}
