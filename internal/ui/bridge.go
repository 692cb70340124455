package ui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gravitrone/tdome/internal/store"
)

const bridgeBuffer = 64

// storeChangedMsg carries the store events collected since the last
// delivery. overflow means events were dropped and every view should
// reload from the store.
type storeChangedMsg struct {
	kinds    store.EventKind
	keys     []store.Key
	overflow bool
}

func (m storeChangedMsg) has(kind store.EventKind) bool {
	return m.overflow || m.kinds&kind != 0
}

func (m storeChangedMsg) touches(key store.Key) bool {
	if m.overflow {
		return true
	}
	for _, k := range m.keys {
		if k == key {
			return true
		}
	}
	return false
}

// storeBridge forwards store events, which fire on whatever goroutine
// mutated the store, to the bubbletea update loop.
type storeBridge struct {
	ch       chan store.Event
	done     chan struct{}
	overflow atomic.Bool
	cancel   func()
	once     sync.Once
}

func newStoreBridge(st *store.Store) *storeBridge {
	b := &storeBridge{
		ch:   make(chan store.Event, bridgeBuffer),
		done: make(chan struct{}),
	}
	b.cancel = st.Subscribe(store.AllEvents, func(e store.Event) {
		select {
		case b.ch <- e:
		default:
			b.overflow.Store(true)
		}
	})
	return b
}

// wait blocks until at least one event arrives, then delivers everything
// queued as one message. It returns nil once the bridge is closed.
func (b *storeBridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-b.ch:
			return b.collect(storeChangedMsg{kinds: e.Kind, keys: keysOf(nil, e)})
		case <-b.done:
			return nil
		}
	}
}

// poll returns the queued events without blocking.
func (b *storeBridge) poll() (storeChangedMsg, bool) {
	msg := b.collect(storeChangedMsg{})
	return msg, msg.kinds != 0 || msg.overflow
}

func (b *storeBridge) collect(msg storeChangedMsg) storeChangedMsg {
	for {
		select {
		case e := <-b.ch:
			msg.kinds |= e.Kind
			msg.keys = keysOf(msg.keys, e)
		default:
			msg.overflow = b.overflow.Swap(false)
			return msg
		}
	}
}

func keysOf(keys []store.Key, e store.Event) []store.Key {
	if e.Key == "" {
		return keys
	}
	for _, k := range keys {
		if k == e.Key {
			return keys
		}
	}
	return append(keys, e.Key)
}

func (b *storeBridge) close() {
	b.once.Do(func() {
		b.cancel()
		close(b.done)
	})
}
