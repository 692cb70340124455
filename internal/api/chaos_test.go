package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConcurrentCreates(t *testing.T) {
	var next atomic.Int32
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/groups" {
			var body CreateGroupInput
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "stress-group", body.Name)
			n := next.Add(1)
			w.Write(objectResponse(map[string]any{"number": n, "name": body.Name}))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	const workers = 50
	var wg sync.WaitGroup
	numbers := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := client.CreateGroup(context.Background(), CreateGroupInput{Name: "stress-group"})
			if !assert.NoError(t, err) {
				return
			}
			numbers <- g.Number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[int]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "duplicate number %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestClientHandlesTruncatedEnvelope(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objects":[{"talk_id":1,`))
	})

	_, err := client.ListUngroupedTalks(context.Background())
	require.Error(t, err)
}
