package header

import "testing"

func TestInsertPreservesPosition(t *testing.T) {
	h := &Header{}
	h.Append("accept", "a")
	h.Append("user-agent", "ua")
	h.Append("accept-language", "en")

	h.Insert("accept", "b")

	pairs := h.Pairs()
	if len(pairs) != 3 {
		t.Fatalf("expected 3 entries after Insert replace, got %d", len(pairs))
	}
	if pairs[0].Name != "accept" || pairs[0].Value != "b" {
		t.Fatalf("Insert should update in place at original position, got %+v", pairs[0])
	}
	if pairs[1].Name != "user-agent" {
		t.Fatalf("unexpected reorder: %+v", pairs)
	}
}

func TestInsertDropsDuplicates(t *testing.T) {
	h := &Header{}
	h.Append("cookie", "a=1")
	h.Append("cookie", "b=2")
	h.Insert("cookie", "c=3")

	if got := h.Values("cookie"); len(got) != 1 || got[0] != "c=3" {
		t.Fatalf("Insert must collapse duplicates, got %v", got)
	}
}

func TestAppendAllowsDuplicates(t *testing.T) {
	h := &Header{}
	h.Append("set-cookie", "a=1")
	h.Append("set-cookie", "b=2")
	if got := h.Values("set-cookie"); len(got) != 2 {
		t.Fatalf("Append must not dedupe, got %v", got)
	}
}

func TestRemoveStripsAllMatches(t *testing.T) {
	h := &Header{}
	h.Append("X-Foo", "1")
	h.Append("x-foo", "2")
	h.Append("x-bar", "3")
	h.Remove("X-FOO")
	if h.Has("x-foo") {
		t.Fatal("Remove should be case-insensitive and strip all matches")
	}
	if !h.Has("x-bar") {
		t.Fatal("Remove must not affect unrelated headers")
	}
}

func TestGetCaseInsensitiveFirstOccurrence(t *testing.T) {
	h := &Header{}
	h.Append("Accept", "first")
	h.Append("ACCEPT", "second")
	v, ok := h.Get("accept")
	if !ok || v != "first" {
		t.Fatalf("Get must return first occurrence, got %q ok=%v", v, ok)
	}
}

func TestCasingPreservedOnWire(t *testing.T) {
	h := &Header{}
	h.Append("sec-CH-ua", "x")
	pairs := h.Pairs()
	if pairs[0].Name != "sec-CH-ua" {
		t.Fatalf("original casing must survive, got %q", pairs[0].Name)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	h := &Header{}
	h.Append("a", "1")
	c := h.Clone()
	c.Append("a", "2")
	if h.Len() != 1 {
		t.Fatalf("mutating the clone must not affect the original, got len=%d", h.Len())
	}
}

func TestMergePreservesOrderAndDuplicates(t *testing.T) {
	base := New(Pair{Name: "accept", Value: "text/html"})
	overlay := New(Pair{Name: "cookie", Value: "a=1"}, Pair{Name: "cookie", Value: "b=2"})
	base.Merge(overlay)
	pairs := base.Pairs()
	if len(pairs) != 3 || pairs[1].Value != "a=1" || pairs[2].Value != "b=2" {
		t.Fatalf("unexpected merge result: %+v", pairs)
	}
}
