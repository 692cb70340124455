package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/store"
)

func TestBridgeCollectsEvents(t *testing.T) {
	st := store.New()
	b := newStoreBridge(st)
	defer b.close()

	_, ok := b.poll()
	assert.False(t, ok)

	st.UpsertTalk(api.Talk{ID: 1, Title: "A"})
	key := st.Stage("G", []api.Talk{{ID: 1, Title: "A"}})

	msg, ok := b.poll()
	require.True(t, ok)
	assert.True(t, msg.has(store.GroupsChanged))
	assert.True(t, msg.has(store.UngroupedChanged))
	assert.True(t, msg.touches(key))
	assert.False(t, msg.touches(store.Key("other")))
	assert.False(t, msg.overflow)
}

func TestBridgeWaitDeliversQueuedEvents(t *testing.T) {
	st := store.New()
	b := newStoreBridge(st)
	defer b.close()

	st.UpsertGroup(api.Group{Number: 1, Name: "A"})
	st.UpsertGroup(api.Group{Number: 2, Name: "B"})

	msg, ok := b.wait()().(storeChangedMsg)
	require.True(t, ok)
	assert.Equal(t, store.GroupsChanged, msg.kinds)

	_, pending := b.poll()
	assert.False(t, pending)
}

func TestBridgeOverflowMarksFullReload(t *testing.T) {
	st := store.New()
	b := newStoreBridge(st)
	defer b.close()

	for i := 1; i <= bridgeBuffer+10; i++ {
		st.UpsertGroup(api.Group{Number: i, Name: "G"})
	}

	msg, ok := b.poll()
	require.True(t, ok)
	assert.True(t, msg.overflow)
	assert.True(t, msg.has(store.UngroupedChanged))
	assert.True(t, msg.touches(store.Key("any")))

	msg, ok = b.poll()
	assert.False(t, ok)
	assert.False(t, msg.overflow)
}

func TestBridgeCloseStopsDelivery(t *testing.T) {
	st := store.New()
	b := newStoreBridge(st)
	b.close()
	b.close()

	st.UpsertGroup(api.Group{Number: 1, Name: "A"})
	_, ok := b.poll()
	assert.False(t, ok)
	assert.Nil(t, b.wait()())
}
