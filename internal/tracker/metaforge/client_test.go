package metaforge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arcbot/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Timeout: time.Second}, logx.Nop())
}

func TestFetchLiveEvents_OK(t *testing.T) {
	var gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"name":"Harvester","map":"Dam","icon":"h.png","startTime":1762164000000,"endTime":1762167600000},
			{"name":"Night Raid","map":"Stella Montis","startTime":1762167600000,"endTime":1762171200000}
		]}`))
	})

	got, err := c.FetchLiveEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Harvester", got[0].Name)
	require.Equal(t, "Dam", got[0].Map)
	require.Equal(t, "h.png", got[0].Icon)
	require.EqualValues(t, 1762164000000, got[0].StartMs)
	require.EqualValues(t, 1762167600000, got[0].EndMs)
	require.Equal(t, DefaultUserAgent, gotUA)
}

func TestFetchLiveEvents_EmptyDataIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	got, err := c.FetchLiveEvents(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFetchLiveEvents_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
		"missing data": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"events":[]}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h)
			_, err := c.FetchLiveEvents(context.Background())
			require.Error(t, err)
		})
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"other":1}`))
	})
	_, err := c.FetchLiveEvents(context.Background())
	require.True(t, errors.Is(err, ErrInvalidResponse))
}

func TestFetchLiveEvents_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c := New(Config{URL: srv.URL, Timeout: 50 * time.Millisecond}, logx.Nop())
	start := time.Now()
	_, err := c.FetchLiveEvents(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}
