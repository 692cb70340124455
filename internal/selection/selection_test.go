package selection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitrone/tdome/internal/api"
)

func TestToggleAddsThenRemoves(t *testing.T) {
	s := New()
	talk := api.Talk{ID: 101, Title: "Generators"}

	assert.True(t, s.Toggle(talk))
	assert.True(t, s.Contains(101))
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.Toggle(talk))
	assert.False(t, s.Contains(101))
	assert.Equal(t, 0, s.Len())
}

func TestToggleTwiceRestoresPriorState(t *testing.T) {
	s := New()
	s.Toggle(api.Talk{ID: 1})
	s.Toggle(api.Talk{ID: 3})
	before := s.IDs()

	for _, id := range []int{1, 2, 3, 4} {
		s.Toggle(api.Talk{ID: id})
		s.Toggle(api.Talk{ID: id})
		assert.Equal(t, before, s.IDs(), "toggling %d twice", id)
	}
}

func TestDrainReturnsSortedAndEmpties(t *testing.T) {
	s := New()
	for _, id := range []int{103, 101, 102} {
		s.Toggle(api.Talk{ID: id, Title: "t"})
	}

	got := s.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, []int{101, 102, 103}, []int{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.IDs())
	assert.Empty(t, s.Drain())
}

func TestIDsSorted(t *testing.T) {
	s := New()
	s.Toggle(api.Talk{ID: 9})
	s.Toggle(api.Talk{ID: 2})
	s.Toggle(api.Talk{ID: 5})
	assert.Equal(t, []int{2, 5, 9}, s.IDs())
}

func TestForgetDropsMissingTalks(t *testing.T) {
	s := New()
	s.Toggle(api.Talk{ID: 1})
	s.Toggle(api.Talk{ID: 2})

	s.Forget(func(id int) bool { return id == 2 })
	assert.Equal(t, []int{2}, s.IDs())
}

func TestConcurrentToggle(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.Toggle(api.Talk{ID: id})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
