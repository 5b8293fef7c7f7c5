package trampoline

import "testing"

type marker struct {
	name string
	seen *EventInfo
}

func (m *marker) Annotate(info *EventInfo) { m.seen = info }

func TestEventInfoIsWalksNestedGroups(t *testing.T) {
	info := NewEventInfo(Group{"x", Group{"y", "z"}}, nil)

	for _, want := range []string{"x", "y", "z"} {
		if !info.Is(want) {
			t.Fatalf("Is(%q) = false", want)
		}
	}
	if info.Is("w") {
		t.Fatal("Is(w) = true for an absent leaf")
	}
	if info.Is(nil) {
		t.Fatal("Is(nil) = true for a non-empty tree")
	}
	if got := info.String(); got != "x|y|z" {
		t.Fatalf("String() = %q", got)
	}
}

func TestEventInfoSkipsIncomparableLeaves(t *testing.T) {
	info := NewEventInfo(Group{[]int{1}, "a"}, NewAnnotations())
	if !info.Is("a") {
		t.Fatal("comparable leaf after a slice must still match")
	}
	if info.Is([]int{1}) {
		t.Fatal("incomparable values never match")
	}
}

func TestEventInfoEmpty(t *testing.T) {
	info := NewEventInfo(nil, nil)
	if !info.Empty() || !info.Is(nil) {
		t.Fatal("empty info must only match nil")
	}
	var none *EventInfo
	if !none.Empty() || none.Tree() != nil || none.Leaves() != nil {
		t.Fatal("nil info must behave as empty")
	}
}

func TestAnnotationsTrackCurrentOwner(t *testing.T) {
	table := NewAnnotations()
	m := &marker{name: "door"}

	first := NewEventInfo(Group{m, Timeout{After: Unit}}, table)
	if m.seen != first {
		t.Fatal("annotatable leaf did not receive its info")
	}
	if table.Lookup(m) != first {
		t.Fatal("lookup must return the wrapping info")
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	second := NewEventInfo(m, table)
	table.release(first)
	if table.Lookup(m) != second {
		t.Fatal("releasing a superseded info must keep the newer owner")
	}
	if table.Lookup(Timeout{After: Unit}) != nil {
		t.Fatal("released entries must be gone")
	}

	table.release(second)
	if table.Len() != 0 {
		t.Fatalf("Len() = %d after releasing everything", table.Len())
	}
}
