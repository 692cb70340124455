// Package store holds the in-memory talks and groups the operator is
// arranging. It is the single source of truth for the views: the server is
// reconciled into it by the syncer, and views read from it and observe its
// change events.
//
// Membership is kept as a single talk -> group map, so a talk can never be
// claimed by two groups and the ungrouped pool is always the set of known
// talks without an owner.
package store

import (
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"

	"github.com/gravitrone/tdome/internal/api"
)

var (
	// ErrUnknownGroup is returned for keys the store does not hold.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrPendingGroup is returned when an operation needs the server-assigned
	// number of a group that has not been confirmed yet.
	ErrPendingGroup = errors.New("group is still being created")
	// ErrAlreadyConfirmed is returned when a number is bound twice.
	ErrAlreadyConfirmed = errors.New("group already has a number")
)

// Key identifies a group locally, before and after it has a number.
type Key string

// NewKey returns a fresh creation-ordered key.
func NewKey() Key {
	return Key(ulid.Make().String())
}

// GroupState is where a group is in its creation round trip.
type GroupState int

const (
	StatePending GroupState = iota
	StateConfirmed
)

func (s GroupState) String() string {
	if s == StatePending {
		return "pending"
	}
	return "confirmed"
}

// Group is a read-only snapshot of a group.
type Group struct {
	Key     Key
	Number  int
	Name    string
	Decided *bool
	State   GroupState
	Size    int
}

// Pending reports whether the group is still waiting for its number.
func (g Group) Pending() bool {
	return g.State == StatePending
}

// Path returns the group's resource path. Pending groups have none.
func (g Group) Path() (string, error) {
	if g.Pending() {
		return "", errors.Wrapf(ErrPendingGroup, "group %q", g.Name)
	}
	return api.GroupPath(g.Number), nil
}

// TalksPath returns the member-talks sub-resource path. Pending groups have
// none.
func (g Group) TalksPath() (string, error) {
	if g.Pending() {
		return "", errors.Wrapf(ErrPendingGroup, "group %q", g.Name)
	}
	return api.GroupTalksPath(g.Number), nil
}

type groupEntry struct {
	key     Key
	seq     uint64
	number  int
	name    string
	decided *bool
	state   GroupState
}

// Store is safe for concurrent use. Events are delivered after the lock is
// released, on the goroutine that made the change.
type Store struct {
	mu       sync.RWMutex
	talks    map[int]api.Talk
	owner    map[int]Key
	groups   map[Key]*groupEntry
	byNumber map[int]Key
	seq      uint64

	subMu  sync.Mutex
	subs   map[uint64]subscription
	nextID atomic.Uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		talks:    map[int]api.Talk{},
		owner:    map[int]Key{},
		groups:   map[Key]*groupEntry{},
		byNumber: map[int]Key{},
		subs:     map[uint64]subscription{},
	}
}

// --- Reads ---

// Groups returns confirmed groups ascending by number, then pending groups
// in creation order.
func (s *Store) Groups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*groupEntry, 0, len(s.groups))
	for _, g := range s.groups {
		entries = append(entries, g)
	}
	slices.SortFunc(entries, compareEntries)

	sizes := s.sizesLocked()
	out := make([]Group, 0, len(entries))
	for _, g := range entries {
		out = append(out, s.snapshotLocked(g, sizes[g.key]))
	}
	return out
}

func compareEntries(a, b *groupEntry) int {
	switch {
	case a.state != b.state:
		if a.state == StateConfirmed {
			return -1
		}
		return 1
	case a.state == StateConfirmed && a.number != b.number:
		return a.number - b.number
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// Group returns the group with the given key.
func (s *Store) Group(key Key) (Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[key]
	if !ok {
		return Group{}, false
	}
	return s.snapshotLocked(g, s.sizesLocked()[key]), true
}

// GroupByNumber returns the confirmed group with the given number.
func (s *Store) GroupByNumber(number int) (Group, bool) {
	s.mu.RLock()
	key, ok := s.byNumber[number]
	s.mu.RUnlock()
	if !ok {
		return Group{}, false
	}
	return s.Group(key)
}

// Ungrouped returns talks without a group, ascending by talk id.
func (s *Store) Ungrouped() []api.Talk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Talk, 0)
	for id, t := range s.talks {
		if _, owned := s.owner[id]; !owned {
			out = append(out, t)
		}
	}
	sortTalks(out)
	return out
}

// GroupTalks returns the members of a group, ascending by talk id.
func (s *Store) GroupTalks(key Key) []api.Talk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Talk, 0)
	for id, k := range s.owner {
		if k == key {
			out = append(out, s.talks[id])
		}
	}
	sortTalks(out)
	return out
}

// Talk returns a talk by id.
func (s *Store) Talk(id int) (api.Talk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.talks[id]
	return t, ok
}

// Owner returns the group holding a talk; false means ungrouped or unknown.
func (s *Store) Owner(id int) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.owner[id]
	return k, ok
}

func (s *Store) snapshotLocked(g *groupEntry, size int) Group {
	return Group{
		Key:     g.key,
		Number:  g.number,
		Name:    g.name,
		Decided: g.decided,
		State:   g.state,
		Size:    size,
	}
}

func (s *Store) sizesLocked() map[Key]int {
	sizes := make(map[Key]int, len(s.groups))
	for _, k := range s.owner {
		sizes[k]++
	}
	return sizes
}

func sortTalks(talks []api.Talk) {
	slices.SortFunc(talks, func(a, b api.Talk) int { return a.ID - b.ID })
}

// --- Upserts ---

// UpsertTalk inserts a talk into the ungrouped pool, or replaces the
// attributes of a known talk in place. Re-inserting an identical talk is a
// no-op.
func (s *Store) UpsertTalk(t api.Talk) {
	var ev events
	s.mu.Lock()
	s.upsertTalkLocked(t, &ev)
	s.mu.Unlock()
	s.dispatch(ev)
}

func (s *Store) upsertTalkLocked(t api.Talk, ev *events) {
	cur, known := s.talks[t.ID]
	if known && reflect.DeepEqual(cur, t) {
		return
	}
	s.talks[t.ID] = t
	if k, owned := s.owner[t.ID]; owned {
		ev.groupTalks(k)
	} else {
		ev.ungrouped()
	}
}

// UpsertGroup inserts a confirmed group or updates the one with the same
// number. It returns the group's key.
func (s *Store) UpsertGroup(g api.Group) Key {
	var ev events
	s.mu.Lock()
	key, _ := s.upsertGroupLocked(g, &ev)
	s.mu.Unlock()
	s.dispatch(ev)
	return key
}

func (s *Store) upsertGroupLocked(g api.Group, ev *events) (Key, bool) {
	if key, ok := s.byNumber[g.Number]; ok {
		entry := s.groups[key]
		if entry.name != g.Name || !reflect.DeepEqual(entry.decided, g.Decided) {
			entry.name = g.Name
			entry.decided = g.Decided
			ev.groupsChanged()
		}
		return key, false
	}
	entry := s.newEntryLocked(g.Name)
	entry.number = g.Number
	entry.decided = g.Decided
	entry.state = StateConfirmed
	s.byNumber[g.Number] = entry.key
	ev.groupsChanged()
	return entry.key, true
}

func (s *Store) newEntryLocked(name string) *groupEntry {
	s.seq++
	entry := &groupEntry{key: NewKey(), seq: s.seq, name: name}
	s.groups[entry.key] = entry
	return entry
}

// --- Group lifecycle ---

// Stage adds a pending group and moves the given talks into it, out of the
// ungrouped pool or any group that held them.
func (s *Store) Stage(name string, talks []api.Talk) Key {
	var ev events
	s.mu.Lock()
	entry := s.newEntryLocked(name)
	entry.state = StatePending
	ev.groupsChanged()
	for _, t := range talks {
		s.upsertTalkLocked(t, &ev)
		s.moveLocked(t.ID, entry.key, &ev)
	}
	s.mu.Unlock()
	s.dispatch(ev)
	return entry.key
}

// Confirm binds the server-assigned number to a pending group. A number is
// bound once; confirming twice fails with ErrAlreadyConfirmed. If a refresh
// already brought the same server group in under another key, that entry
// is folded into this one.
func (s *Store) Confirm(key Key, g api.Group) error {
	var ev events
	s.mu.Lock()
	entry, ok := s.groups[key]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrUnknownGroup, "confirm %s", key)
	}
	if entry.state == StateConfirmed {
		s.mu.Unlock()
		return errors.Wrapf(ErrAlreadyConfirmed, "group %d", entry.number)
	}
	if dup, exists := s.byNumber[g.Number]; exists && dup != key {
		for id, k := range s.owner {
			if k == dup {
				s.owner[id] = key
			}
		}
		delete(s.groups, dup)
		ev.groupTalks(dup)
	}
	entry.number = g.Number
	entry.name = g.Name
	entry.decided = g.Decided
	entry.state = StateConfirmed
	s.byNumber[g.Number] = key
	ev.groupsChanged()
	ev.groupTalks(key)
	s.mu.Unlock()
	s.dispatch(ev)
	return nil
}

// Rename sets a group's name and returns the previous one.
func (s *Store) Rename(key Key, name string) (string, error) {
	var ev events
	s.mu.Lock()
	entry, ok := s.groups[key]
	if !ok {
		s.mu.Unlock()
		return "", errors.Wrapf(ErrUnknownGroup, "rename %s", key)
	}
	old := entry.name
	if old != name {
		entry.name = name
		ev.groupsChanged()
	}
	s.mu.Unlock()
	s.dispatch(ev)
	return old, nil
}

// RenameIf sets the name only while the group is still named expect. It
// reports whether the name was changed.
func (s *Store) RenameIf(key Key, expect, name string) bool {
	var ev events
	s.mu.Lock()
	entry, ok := s.groups[key]
	changed := ok && entry.name == expect && expect != name
	if changed {
		entry.name = name
		ev.groupsChanged()
	}
	s.mu.Unlock()
	s.dispatch(ev)
	return changed
}

// Update applies the server's copy of a confirmed group to key. It fails
// if the group is gone or the numbers disagree.
func (s *Store) Update(key Key, g api.Group) error {
	var ev events
	s.mu.Lock()
	entry, ok := s.groups[key]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrUnknownGroup, "update %s", key)
	}
	if entry.state != StateConfirmed || entry.number != g.Number {
		s.mu.Unlock()
		return errors.Newf("update %s: server returned group %d", key, g.Number)
	}
	if entry.name != g.Name || !reflect.DeepEqual(entry.decided, g.Decided) {
		entry.name = g.Name
		entry.decided = g.Decided
		ev.groupsChanged()
	}
	s.mu.Unlock()
	s.dispatch(ev)
	return nil
}

// Removed is what RemoveGroup took out of the store.
type Removed struct {
	Group   Group
	Members []api.Talk
}

// RemoveGroup drops a group. Its talks are not deleted; they return to the
// ungrouped pool.
func (s *Store) RemoveGroup(key Key) (Removed, error) {
	var ev events
	s.mu.Lock()
	entry, ok := s.groups[key]
	if !ok {
		s.mu.Unlock()
		return Removed{}, errors.Wrapf(ErrUnknownGroup, "remove %s", key)
	}
	members := s.releaseLocked(key, &ev)
	removed := Removed{Group: s.snapshotLocked(entry, len(members)), Members: members}
	s.dropEntryLocked(entry)
	ev.groupsChanged()
	s.mu.Unlock()
	s.dispatch(ev)
	return removed, nil
}

// DropNumber removes the confirmed group bound to number, if any, and
// ungroups its talks. It reports whether a group was dropped.
func (s *Store) DropNumber(number int) bool {
	var ev events
	s.mu.Lock()
	key, ok := s.byNumber[number]
	if !ok {
		s.mu.Unlock()
		return false
	}
	entry := s.groups[key]
	s.releaseLocked(key, &ev)
	s.dropEntryLocked(entry)
	ev.groupsChanged()
	s.mu.Unlock()
	s.dispatch(ev)
	return true
}

// Restore puts back a group taken out by RemoveGroup under its old key.
// Former members rejoin it only if they are still ungrouped.
func (s *Store) Restore(r Removed) {
	var ev events
	s.mu.Lock()
	if _, exists := s.groups[r.Group.Key]; exists {
		s.mu.Unlock()
		return
	}
	if r.Group.State == StateConfirmed {
		if _, taken := s.byNumber[r.Group.Number]; taken {
			s.mu.Unlock()
			return
		}
		s.byNumber[r.Group.Number] = r.Group.Key
	}
	s.seq++
	s.groups[r.Group.Key] = &groupEntry{
		key:     r.Group.Key,
		seq:     s.seq,
		number:  r.Group.Number,
		name:    r.Group.Name,
		decided: r.Group.Decided,
		state:   r.Group.State,
	}
	ev.groupsChanged()
	for _, t := range r.Members {
		if _, known := s.talks[t.ID]; !known {
			continue
		}
		if _, owned := s.owner[t.ID]; owned {
			continue
		}
		s.moveLocked(t.ID, r.Group.Key, &ev)
	}
	s.mu.Unlock()
	s.dispatch(ev)
}

func (s *Store) dropEntryLocked(entry *groupEntry) {
	delete(s.groups, entry.key)
	if entry.state == StateConfirmed {
		delete(s.byNumber, entry.number)
	}
}

// --- Membership ---

// Move records where a talk was before it was assigned. An empty From
// means the ungrouped pool.
type Move struct {
	TalkID int
	From   Key
}

// Assign moves talks into a group, taking each out of whatever group held
// it first. Talks not yet known are added.
func (s *Store) Assign(key Key, talks []api.Talk) ([]Move, error) {
	var ev events
	s.mu.Lock()
	if _, ok := s.groups[key]; !ok {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrUnknownGroup, "assign to %s", key)
	}
	moves := make([]Move, 0, len(talks))
	for _, t := range talks {
		s.upsertTalkLocked(t, &ev)
		from := s.owner[t.ID]
		if from == key {
			continue
		}
		moves = append(moves, Move{TalkID: t.ID, From: from})
		s.moveLocked(t.ID, key, &ev)
	}
	s.mu.Unlock()
	s.dispatch(ev)
	return moves, nil
}

// Revert undoes moves into key. A talk goes back to its previous group if
// that group still exists, otherwise to the ungrouped pool. Talks that have
// since left key are left alone.
func (s *Store) Revert(key Key, moves []Move) {
	var ev events
	s.mu.Lock()
	for _, mv := range moves {
		if s.owner[mv.TalkID] != key {
			continue
		}
		dest := mv.From
		if _, ok := s.groups[dest]; !ok {
			dest = ""
		}
		s.moveLocked(mv.TalkID, dest, &ev)
	}
	s.mu.Unlock()
	s.dispatch(ev)
}

// moveLocked sets a talk's owner. An empty key ungroups it.
func (s *Store) moveLocked(id int, to Key, ev *events) {
	from, owned := s.owner[id]
	if (owned && from == to) || (!owned && to == "") {
		return
	}
	if owned {
		ev.groupTalks(from)
	} else {
		ev.ungrouped()
	}
	if to == "" {
		delete(s.owner, id)
		ev.ungrouped()
		return
	}
	s.owner[id] = to
	ev.groupTalks(to)
}

func (s *Store) releaseLocked(key Key, ev *events) []api.Talk {
	members := make([]api.Talk, 0)
	for id, k := range s.owner {
		if k == key {
			members = append(members, s.talks[id])
		}
	}
	sortTalks(members)
	for _, t := range members {
		s.moveLocked(t.ID, "", ev)
	}
	return members
}

// --- Replacement from the server ---

// ReplaceGroups makes the confirmed groups match the server's list. Groups
// the server no longer has are dropped and their talks ungrouped. Pending
// groups are untouched. It returns the keys of groups that were new.
func (s *Store) ReplaceGroups(groups []api.Group) []Key {
	var ev events
	s.mu.Lock()
	seen := make(map[int]bool, len(groups))
	added := make([]Key, 0)
	for _, g := range groups {
		seen[g.Number] = true
		if key, isNew := s.upsertGroupLocked(g, &ev); isNew {
			added = append(added, key)
		}
	}
	for _, entry := range s.groups {
		if entry.state == StateConfirmed && !seen[entry.number] {
			s.releaseLocked(entry.key, &ev)
			s.dropEntryLocked(entry)
			ev.groupsChanged()
		}
	}
	s.mu.Unlock()
	s.dispatch(ev)
	return added
}

// ReplaceGroupTalks makes a group's members exactly talks. Members the
// server did not list return to the ungrouped pool.
func (s *Store) ReplaceGroupTalks(key Key, talks []api.Talk) error {
	var ev events
	s.mu.Lock()
	if _, ok := s.groups[key]; !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrUnknownGroup, "replace talks of %s", key)
	}
	keep := make(map[int]bool, len(talks))
	for _, t := range talks {
		keep[t.ID] = true
		s.upsertTalkLocked(t, &ev)
		s.moveLocked(t.ID, key, &ev)
	}
	for id, k := range s.owner {
		if k == key && !keep[id] {
			s.moveLocked(id, "", &ev)
		}
	}
	s.mu.Unlock()
	s.dispatch(ev)
	return nil
}

// ReplaceUngrouped makes the ungrouped pool exactly talks. Listed talks are
// taken out of any confirmed group; talks staged in a pending group stay
// there until its create settles. Talks that were ungrouped here but are
// not listed are forgotten.
func (s *Store) ReplaceUngrouped(talks []api.Talk) {
	var ev events
	s.mu.Lock()
	keep := make(map[int]bool, len(talks))
	for _, t := range talks {
		keep[t.ID] = true
		s.upsertTalkLocked(t, &ev)
		if owner, owned := s.owner[t.ID]; owned && s.groups[owner].state == StatePending {
			continue
		}
		s.moveLocked(t.ID, "", &ev)
	}
	for id := range s.talks {
		if _, owned := s.owner[id]; !owned && !keep[id] {
			delete(s.talks, id)
			ev.ungrouped()
		}
	}
	s.mu.Unlock()
	s.dispatch(ev)
}

// CheckPartition verifies that every known talk is either ungrouped or in
// exactly one existing group.
func (s *Store) CheckPartition() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, k := range s.owner {
		if _, known := s.talks[id]; !known {
			return errors.Newf("talk %d is grouped but unknown", id)
		}
		if _, ok := s.groups[k]; !ok {
			return errors.Newf("talk %d is held by missing group %s", id, k)
		}
	}
	for n, k := range s.byNumber {
		entry, ok := s.groups[k]
		if !ok || entry.number != n || entry.state != StateConfirmed {
			return errors.Newf("group number %d is indexed to a stale entry", n)
		}
	}
	return nil
}
