package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gravitrone/tdome/internal/api"
)

func record(s *Store, kinds EventKind) *[]Event {
	got := &[]Event{}
	s.Subscribe(kinds, func(e Event) { *got = append(*got, e) })
	return got
}

func TestStageEmitsScopedEvents(t *testing.T) {
	s := seeded(t, 1, 2)
	all := record(s, AllEvents)
	groupsOnly := record(s, GroupsChanged)

	key := s.Stage("G", talks(1))

	assert.Equal(t, []Event{
		{Kind: GroupsChanged},
		{Kind: UngroupedChanged},
		{Kind: GroupTalksChanged, Key: key},
	}, *all)
	assert.Equal(t, []Event{{Kind: GroupsChanged}}, *groupsOnly)
}

func TestMoveBetweenGroupsNotifiesBothGroups(t *testing.T) {
	s := seeded(t, 1)
	a := s.UpsertGroup(api.Group{Number: 1, Name: "A"})
	b := s.UpsertGroup(api.Group{Number: 2, Name: "B"})
	_, _ = s.Assign(a, talks(1))

	got := record(s, GroupTalksChanged|UngroupedChanged)
	_, _ = s.Assign(b, talks(1))

	assert.Equal(t, []Event{
		{Kind: GroupTalksChanged, Key: a},
		{Kind: GroupTalksChanged, Key: b},
	}, *got)
}

func TestRenameEmitsGroupsChangedOnlyOnChange(t *testing.T) {
	s := New()
	key := s.UpsertGroup(api.Group{Number: 1, Name: "A"})
	got := record(s, AllEvents)

	_, _ = s.Rename(key, "A")
	assert.Empty(t, *got)

	_, _ = s.Rename(key, "B")
	assert.Equal(t, []Event{{Kind: GroupsChanged}}, *got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New()
	count := 0
	cancel := s.Subscribe(AllEvents, func(Event) { count++ })

	s.UpsertGroup(api.Group{Number: 1, Name: "A"})
	cancel()
	s.UpsertGroup(api.Group{Number: 2, Name: "B"})

	assert.Equal(t, 1, count)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "groups", GroupsChanged.String())
	assert.Equal(t, "group-talks", GroupTalksChanged.String())
	assert.Equal(t, "ungrouped", UngroupedChanged.String())
	assert.Equal(t, "mixed", AllEvents.String())
}
