package memtable

import "testing"

func TestEmptySkipList(t *testing.T) {
	sl := New()

	if sl.Size() != 0 {
		t.Fatalf("expected size 0, got %d", sl.Size())
	}

	if _, found, _ := sl.Get(1); found {
		t.Fatalf("expected not found in empty skiplist")
	}
}

func TestPutAndGetSingle(t *testing.T) {
	sl := New()
	sl.Put(10, []byte("ten"))

	val, found, deleted := sl.Get(10)
	if !found || deleted || string(val) != "ten" {
		t.Fatalf("expected (ten,true,false), got (%v,%v,%v)", val, found, deleted)
	}
}

func TestUpdateExistingKey(t *testing.T) {
	sl := New()
	sl.Put(1, []byte("one"))
	sl.Put(1, []byte("uno"))

	val, found, _ := sl.Get(1)
	if !found || string(val) != "uno" {
		t.Fatalf("update failed, got (%v,%v)", val, found)
	}
}

func TestSequentialInsertAndGet(t *testing.T) {
	sl := New()
	for i := uint64(0); i < 1000; i++ {
		sl.Put(i, []byte{byte(i)})
	}

	for i := uint64(0); i < 1000; i++ {
		val, found, deleted := sl.Get(i)
		if !found || deleted || val[0] != byte(i) {
			t.Fatalf("key %d: expected found, got (%v,%v,%v)", i, val, found, deleted)
		}
	}
}

func TestDeleteLiveKey(t *testing.T) {
	sl := New()
	sl.Put(5, []byte("v"))

	if ok := sl.Del(5, false, false, false); !ok {
		t.Fatalf("expected delete of live key to return true")
	}

	if _, found, _ := sl.Get(5); found {
		t.Fatalf("expected key gone after physical unlink")
	}
}

func TestDeleteAlreadyTombstoned(t *testing.T) {
	sl := New()
	// key absent here but present on disk -> insert tombstone
	if ok := sl.Del(7, true, false, true); !ok {
		t.Fatalf("expected tombstone insert to return true")
	}

	if ok := sl.Del(7, true, false, true); ok {
		t.Fatalf("expected second delete of tombstoned key to return false")
	}
}

func TestDeleteAbsentEverywhere(t *testing.T) {
	sl := New()
	if ok := sl.Del(42, false, false, true); ok {
		t.Fatalf("expected delete of unknown key to return false")
	}
}

func TestDeleteKeyLiveInImmutable(t *testing.T) {
	sl := New()
	if ok := sl.Del(9, false, true, false); !ok {
		t.Fatalf("expected tombstone insert for key live in immutable memtable")
	}
	_, found, deleted := sl.Get(9)
	if !found || !deleted {
		t.Fatalf("expected tombstone present")
	}
}

func TestScanOrderedAndBounded(t *testing.T) {
	sl := New()
	for i := uint64(0); i < 20; i++ {
		sl.Put(i, []byte{byte(i)})
	}
	sl.Del(4, false, false, false)
	sl.Del(10, false, false, false)

	recs := sl.Scan(2, 12)
	prev := uint64(0)
	first := true
	for _, r := range recs {
		if !first && r.Key <= prev {
			t.Fatalf("scan not strictly ascending at key %d", r.Key)
		}
		if r.Key < 2 || r.Key > 12 {
			t.Fatalf("scan key %d out of bounds", r.Key)
		}
		prev = r.Key
		first = false
	}
	for _, r := range recs {
		if r.Key == 4 || r.Key == 10 {
			t.Fatalf("expected deleted key %d to be absent from scan", r.Key)
		}
	}
}

func TestTraverseIncludesTombstones(t *testing.T) {
	sl := New()
	// key 1 absent here but present on disk -> tombstone inserted
	sl.Del(1, true, false, true)
	sl.Put(2, []byte("b"))

	recs := sl.Traverse()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records (including tombstone), got %d", len(recs))
	}
	if recs[0].Key != 1 || !recs[0].Deleted {
		t.Fatalf("expected first record to be tombstoned key 1, got %+v", recs[0])
	}
}

func TestResetEmptiesList(t *testing.T) {
	sl := New()
	sl.Put(1, []byte("a"))
	sl.Put(2, []byte("b"))
	sl.Reset()

	if sl.Size() != 0 {
		t.Fatalf("expected size 0 after reset, got %d", sl.Size())
	}
	if _, found, _ := sl.Get(1); found {
		t.Fatalf("expected empty list after reset")
	}
}

func TestSizeAccounting(t *testing.T) {
	sl := New()
	sl.Put(1, []byte("abcd"))
	if sl.Size() != 24+4 {
		t.Fatalf("expected size 28, got %d", sl.Size())
	}

	sl.Put(1, []byte("abcdef"))
	if sl.Size() != 24+6 {
		t.Fatalf("expected size 30 after overwrite, got %d", sl.Size())
	}

	// unlinking subtracts 20+len(value): 30 - (20+6) = 4
	sl.Del(1, false, false, false)
	if sl.Size() != 4 {
		t.Fatalf("expected size 4 after unlinking only key, got %d", sl.Size())
	}
}
