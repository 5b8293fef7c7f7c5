package trampoline

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Event is an opaque wake reason produced by a Poll. Events are compared with
// ==, so only comparable values can be matched or annotated.
type Event = any

// Group is an ordered OR-composition of wake reasons. Members are Events or
// nested Groups.
type Group []Event

// Timeout is the Event produced by timer polls and by the fallback wait of a
// task that registered nothing.
type Timeout struct {
	After time.Duration
}

func (t Timeout) String() string {
	return "timeout(" + t.After.String() + ")"
}

// Annotatable is implemented by Events that want to know which EventInfo
// wrapped them last.
type Annotatable interface {
	Annotate(info *EventInfo)
}

// EventInfo wraps a tree of Events and answers "did I wake because of X".
type EventInfo struct {
	tree Event
}

// NewEventInfo wraps tree and annotates every leaf with a back-reference to
// the new EventInfo. table may be nil.
func NewEventInfo(tree Event, table *Annotations) *EventInfo {
	info := &EventInfo{tree: tree}
	if tree != nil {
		walkLeaves(tree, func(leaf Event) bool {
			if a, ok := leaf.(Annotatable); ok {
				a.Annotate(info)
			}
			table.set(leaf, info)
			return true
		})
	}
	return info
}

// Is reports whether v equals any leaf of the tree, depth-first. A nil info
// or an empty tree only matches nil.
func (i *EventInfo) Is(v any) bool {
	if i == nil || i.tree == nil {
		return v == nil
	}
	found := false
	walkLeaves(i.tree, func(leaf Event) bool {
		if eventEqual(leaf, v) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Tree returns the wrapped event tree.
func (i *EventInfo) Tree() Event {
	if i == nil {
		return nil
	}
	return i.tree
}

// Empty reports whether the info carries no event (first run of a task).
func (i *EventInfo) Empty() bool {
	return i == nil || i.tree == nil
}

// Leaves flattens the tree in depth-first order.
func (i *EventInfo) Leaves() []Event {
	if i.Empty() {
		return nil
	}
	var out []Event
	walkLeaves(i.tree, func(leaf Event) bool {
		out = append(out, leaf)
		return true
	})
	return out
}

func (i *EventInfo) String() string {
	if i.Empty() {
		return "<none>"
	}
	leaves := i.Leaves()
	parts := make([]string, len(leaves))
	for n, leaf := range leaves {
		parts[n] = fmt.Sprint(leaf)
	}
	return strings.Join(parts, "|")
}

// walkLeaves visits leaves depth-first until visit returns false. It reports
// whether the walk ran to completion.
func walkLeaves(ev Event, visit func(Event) bool) bool {
	if g, ok := ev.(Group); ok {
		for _, member := range g {
			if !walkLeaves(member, visit) {
				return false
			}
		}
		return true
	}
	return visit(ev)
}

func eventEqual(leaf, v any) bool {
	if leaf == nil || v == nil {
		return leaf == nil && v == nil
	}
	if !reflect.ValueOf(leaf).Comparable() || !reflect.ValueOf(v).Comparable() {
		return false
	}
	return leaf == v
}

// Annotations maps Events to the EventInfo that last wrapped them. Entries are
// released when that EventInfo is superseded, so the table only ever holds the
// current wake reasons of live tasks.
type Annotations struct {
	owners map[Event]*EventInfo
}

// NewAnnotations returns an empty table.
func NewAnnotations() *Annotations {
	return &Annotations{owners: make(map[Event]*EventInfo)}
}

// Lookup returns the EventInfo that last wrapped ev, or nil.
func (a *Annotations) Lookup(ev Event) *EventInfo {
	if a == nil || ev == nil || !reflect.ValueOf(ev).Comparable() {
		return nil
	}
	return a.owners[ev]
}

// Len returns the number of annotated events.
func (a *Annotations) Len() int {
	if a == nil {
		return 0
	}
	return len(a.owners)
}

func (a *Annotations) set(leaf Event, info *EventInfo) {
	if a == nil || leaf == nil || !reflect.ValueOf(leaf).Comparable() {
		return
	}
	if a.owners == nil {
		a.owners = make(map[Event]*EventInfo)
	}
	a.owners[leaf] = info
}

// release drops the entries still owned by info.
func (a *Annotations) release(info *EventInfo) {
	if a == nil || info.Empty() {
		return
	}
	walkLeaves(info.tree, func(leaf Event) bool {
		if leaf != nil && reflect.ValueOf(leaf).Comparable() && a.owners[leaf] == info {
			delete(a.owners, leaf)
		}
		return true
	})
}
