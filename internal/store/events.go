package store

// EventKind is a bit set naming which collection changed.
type EventKind uint8

const (
	// GroupsChanged fires when groups are added, removed, renamed or
	// confirmed.
	GroupsChanged EventKind = 1 << iota
	// GroupTalksChanged fires when a specific group's members change.
	GroupTalksChanged
	// UngroupedChanged fires when the ungrouped pool changes.
	UngroupedChanged

	AllEvents = GroupsChanged | GroupTalksChanged | UngroupedChanged
)

func (k EventKind) String() string {
	switch k {
	case GroupsChanged:
		return "groups"
	case GroupTalksChanged:
		return "group-talks"
	case UngroupedChanged:
		return "ungrouped"
	}
	return "mixed"
}

// Event is one change notification. Key is set for GroupTalksChanged only.
type Event struct {
	Kind EventKind
	Key  Key
}

type subscription struct {
	kinds EventKind
	fn    func(Event)
}

// Subscribe registers fn for the given kinds and returns a function that
// removes it. fn runs on the goroutine that changed the store and must not
// call back into mutating methods.
func (s *Store) Subscribe(kinds EventKind, fn func(Event)) func() {
	id := s.nextID.Add(1)
	s.subMu.Lock()
	s.subs[id] = subscription{kinds: kinds, fn: fn}
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) dispatch(ev events) {
	if len(ev.list) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, e := range ev.list {
		for _, sub := range subs {
			if sub.kinds&e.Kind != 0 {
				sub.fn(e)
			}
		}
	}
}

// events collects the notifications of one mutation, deduplicated and in
// first-seen order.
type events struct {
	list []Event
	seen map[Event]bool
}

func (e *events) add(ev Event) {
	if e.seen == nil {
		e.seen = map[Event]bool{}
	}
	if e.seen[ev] {
		return
	}
	e.seen[ev] = true
	e.list = append(e.list, ev)
}

func (e *events) groupsChanged() { e.add(Event{Kind: GroupsChanged}) }

func (e *events) ungrouped() { e.add(Event{Kind: UngroupedChanged}) }

func (e *events) groupTalks(key Key) { e.add(Event{Kind: GroupTalksChanged, Key: key}) }
