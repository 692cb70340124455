package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestNewDefaultClientUsesDefaultBaseURL(t *testing.T) {
	var gotURL string
	client := NewDefaultClient()
	client.httpClient.Transport = roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		body := `{"objects":[{"number":1,"name":"Alpha"}]}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})

	groups, err := client.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, strings.HasPrefix(gotURL, DefaultBaseURL))
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	client := NewClient("http://example.test/")
	assert.Equal(t, "http://example.test", client.BaseURL())
}
