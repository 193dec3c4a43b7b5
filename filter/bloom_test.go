package filter

import "testing"

func TestBloomRoundtrip(t *testing.T) {
	b := newBloom(defaultM, defaultK)

	if b.contains(42) {
		t.Fatalf("expected fresh filter to not contain 42")
	}

	b.add(42)
	if !b.contains(42) {
		t.Fatalf("expected filter to contain 42 after add")
	}

	b.reset()
	if b.contains(42) {
		t.Fatalf("expected filter to not contain 42 after reset")
	}
}

func TestBloomNoFalseNegatives(t *testing.T) {
	b := newBloom(defaultM, defaultK)
	keys := make([]uint64, 0, 2000)
	for i := uint64(0); i < 2000; i++ {
		keys = append(keys, i*97+13)
	}
	for _, k := range keys {
		b.add(k)
	}
	for _, k := range keys {
		if !b.contains(k) {
			t.Fatalf("false negative for key %d", k)
		}
	}
}

func TestSetAddContains(t *testing.T) {
	s := New()

	if s.Contains(5, 0, 100) {
		t.Fatalf("expected absent filter to report false")
	}

	s.Add(5, 0, 100)
	if !s.Contains(5, 0, 100) {
		t.Fatalf("expected contains after add")
	}
	if s.Contains(5, 0, 200) {
		t.Fatalf("expected a different fileID's filter to be unaffected")
	}
	if s.Contains(5, 1, 100) {
		t.Fatalf("expected a different level's filter to be unaffected")
	}
}

func TestSetWithParams(t *testing.T) {
	s := New(WithParams(1024, 4))
	s.Add(7, 0, 1)
	if !s.Contains(7, 0, 1) {
		t.Fatalf("expected contains with overridden params")
	}
}

func TestSetResetAndDrop(t *testing.T) {
	s := New()
	s.Add(1, 0, 10)
	s.Drop(0, 10)
	if s.Contains(1, 0, 10) {
		t.Fatalf("expected dropped file's filter to report false")
	}

	s.Add(2, 1, 20)
	s.Reset()
	if s.Contains(2, 1, 20) {
		t.Fatalf("expected reset filter set to report false")
	}
}
