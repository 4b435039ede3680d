package storage

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// testDB runs the shared contract against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := db.Put([]byte("order/o1"), []byte(`{"id":"o1"}`), 0); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		val, err := db.Get([]byte("order/o1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if string(val) != `{"id":"o1"}` {
			t.Errorf("Get() = %q", val)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		db.Put([]byte("ow"), []byte("open"), 0)
		db.Put([]byte("ow"), []byte("filled"), 0)
		val, err := db.Get([]byte("ow"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if string(val) != "filled" {
			t.Errorf("Get() after overwrite = %q, want filled", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("del"), []byte("x"), 0)
		if err := db.Delete([]byte("del")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if _, err := db.Get([]byte("del")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
		}
		if err := db.Delete([]byte("never-existed")); err != nil {
			t.Errorf("Delete() of missing key error: %v", err)
		}
	})

	t.Run("BinaryKeys", func(t *testing.T) {
		key := []byte{0x00, 0x01, 0xFF}
		value := make([]byte, 256)
		for i := range value {
			value[i] = byte(i)
		}
		if err := db.Put(key, value, 0); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		got, err := db.Get(key)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Error("binary value changed in storage")
		}
	})

	t.Run("ForEachPrefixOrdered", func(t *testing.T) {
		db.Put([]byte("msg/o1/0003"), []byte("c"), 0)
		db.Put([]byte("msg/o1/0001"), []byte("a"), 0)
		db.Put([]byte("msg/o1/0002"), []byte("b"), 0)
		db.Put([]byte("msg/o2/0001"), []byte("other"), 0)

		var got []string
		err := db.ForEach([]byte("msg/o1/"), func(_, value []byte) error {
			got = append(got, string(value))
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("ForEach() = %v, want [a b c]", got)
		}
	})

	t.Run("ForEachStops", func(t *testing.T) {
		stop := errors.New("stop")
		n := 0
		err := db.ForEach([]byte("msg/"), func(_, _ []byte) error {
			n++
			return stop
		})
		if !errors.Is(err, stop) || n != 1 {
			t.Errorf("ForEach() = %v after %d calls, want stop after 1", err, n)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		db.Put([]byte("batch/old"), []byte("x"), 0)

		b := db.NewBatch()
		b.Put([]byte("batch/1"), []byte("one"), 0)
		b.Put([]byte("batch/2"), []byte("two"), time.Hour)
		b.Delete([]byte("batch/old"))

		if _, err := db.Get([]byte("batch/1")); !errors.Is(err, ErrNotFound) {
			t.Error("batch writes should not be visible before Commit()")
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error: %v", err)
		}
		if val, err := db.Get([]byte("batch/2")); err != nil || string(val) != "two" {
			t.Errorf("Get(batch/2) = %q, %v", val, err)
		}
		if _, err := db.Get([]byte("batch/old")); !errors.Is(err, ErrNotFound) {
			t.Error("batch delete should remove batch/old")
		}
	})

	t.Run("BatchCancel", func(t *testing.T) {
		b := db.NewBatch()
		b.Put([]byte("cancel/1"), []byte("one"), 0)
		b.Cancel()
		if _, err := db.Get([]byte("cancel/1")); !errors.Is(err, ErrNotFound) {
			t.Error("cancelled batch writes should be discarded")
		}

		b = db.NewBatch()
		b.Put([]byte("cancel/2"), []byte("two"), 0)
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error: %v", err)
		}
		b.Cancel()
		if val, err := db.Get([]byte("cancel/2")); err != nil || string(val) != "two" {
			t.Errorf("Get(cancel/2) after Commit and Cancel = %q, %v", val, err)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		type escrow struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := PutJSON(db, []byte("escrow/e1"), escrow{ID: "e1", Status: "funded"}, time.Hour); err != nil {
			t.Fatalf("PutJSON() error: %v", err)
		}
		var got escrow
		if err := GetJSON(db, []byte("escrow/e1"), &got); err != nil {
			t.Fatalf("GetJSON() error: %v", err)
		}
		if got.Status != "funded" {
			t.Errorf("status = %q, want funded", got.Status)
		}
		if err := GetJSON(db, []byte("escrow/none"), &got); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetJSON() missing error = %v, want ErrNotFound", err)
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB_InMemory(t *testing.T) {
	db, err := NewBadgerInMemory()
	if err != nil {
		t.Fatalf("NewBadgerInMemory() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestMemoryDB_TTL(t *testing.T) {
	db := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	db.now = func() time.Time { return now }

	db.Put([]byte("order/short"), []byte("1"), time.Minute)
	db.Put([]byte("order/forever"), []byte("2"), 0)

	now = now.Add(2 * time.Minute)
	if _, err := db.Get([]byte("order/short")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired key Get() error = %v, want ErrNotFound", err)
	}
	var keys []string
	db.ForEach([]byte("order/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if len(keys) != 1 || keys[0] != "order/forever" {
		t.Errorf("ForEach() keys = %v, want [order/forever]", keys)
	}
	if _, ok := db.data["order/short"]; ok {
		t.Error("ForEach should prune expired keys")
	}
}

func TestMemoryDB_ReturnsCopies(t *testing.T) {
	db := NewMemory()
	value := []byte("abc")
	db.Put([]byte("k"), value, 0)
	value[0] = 'z'

	got, _ := db.Get([]byte("k"))
	if string(got) != "abc" {
		t.Errorf("stored value changed through caller slice: %q", got)
	}
	got[0] = 'y'
	again, _ := db.Get([]byte("k"))
	if string(again) != "abc" {
		t.Errorf("stored value changed through returned slice: %q", again)
	}
}

func TestBadgerDB_TTL(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for badger's one-second expiry granularity")
	}
	db, err := NewBadgerInMemory()
	if err != nil {
		t.Fatalf("NewBadgerInMemory() error: %v", err)
	}
	defer db.Close()

	db.Put([]byte("order/short"), []byte("1"), time.Second)
	if _, err := db.Get([]byte("order/short")); err != nil {
		t.Fatalf("Get() before expiry error: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if _, err := db.Get([]byte("order/short")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestBadgerDB_PersistenceAndCompact(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	db1.Put([]byte("order/o1"), []byte("data"), 0)
	db1.Close()

	db2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db2.Close()

	val, err := db2.Get([]byte("order/o1"))
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if string(val) != "data" {
		t.Errorf("persisted value = %q, want data", val)
	}
	if err := db2.Compact(); err != nil {
		t.Errorf("Compact() error: %v", err)
	}
}

func TestBadgerDB_Locked(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()

	if _, err := NewBadger(dir); err == nil {
		t.Fatal("second open of the same directory should fail")
	}
}
