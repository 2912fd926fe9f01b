package releases

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(&config.Config{
		Releases: config.ReleasesConfig{
			BaseURL: baseURL,
			Timeout: "2s",
		},
	})
}

func TestFetchChannelMapsIndex(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{
			"packages": [
				{"name": "blender", "version": "4.2.0", "date": "2024-03-01T12:00:00Z",
				 "url": "https://cdn.example.com/blender-4.2.0.tar.gz", "variant": "main"},
				{"name": "blender", "version": "4.1.0", "date": "2024-02-01T12:00:00Z",
				 "url": "https://cdn.example.com/blender-4.1.0.tar.gz"}
			]
		}`)
	}))
	defer srv.Close()

	pkgs, err := testClient(srv.URL).FetchChannel(context.Background(), catalog.ChannelDaily)
	require.NoError(t, err)
	require.Equal(t, "/daily.json", gotPath)
	require.Len(t, pkgs, 2)

	require.Equal(t, "blender", pkgs[0].Name)
	require.Equal(t, "4.2.0", pkgs[0].Version)
	require.Equal(t, catalog.ChannelDaily, pkgs[0].Build.Channel)
	require.Equal(t, "main", pkgs[0].Build.Variant)
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), pkgs[0].Date.UTC())
	require.Equal(t, catalog.StatusNew, pkgs[0].Status)
	require.Equal(t, catalog.PhaseFetched, pkgs[0].State.Phase)
	require.Empty(t, pkgs[1].Build.Variant)
}

func TestFetchChannelRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"packages": []}`)
	}))
	defer srv.Close()

	pkgs, err := testClient(srv.URL).FetchChannel(context.Background(), catalog.ChannelStable)
	require.NoError(t, err)
	require.Empty(t, pkgs)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestFetchChannelNotFoundDoesNotRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchChannel(context.Background(), catalog.ChannelLTS)
	require.Error(t, err)
	require.False(t, IsConnectivity(err), "a definite 404 is not a connectivity problem")
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := c.FetchChannel(context.Background(), catalog.ChannelDaily)
		require.Error(t, err)
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	_, err := c.FetchChannel(context.Background(), catalog.ChannelDaily)
	require.Error(t, err)
	require.True(t, IsConnectivity(err), "an open breaker reads as a connectivity problem")
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts), "no request leaves while the breaker is open")
}

func TestProbeAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).Probe(context.Background(), srv.URL+"/blender.tar.gz")
	require.NoError(t, err)
	require.Equal(t, Available, got)
}

func TestProbeGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).Probe(context.Background(), srv.URL+"/blender.tar.gz")
	require.NoError(t, err)
	require.Equal(t, Gone, got)
}

func TestProbeServerErrorIsConnectivity(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).Probe(context.Background(), srv.URL+"/blender.tar.gz")
	require.Error(t, err)
	require.True(t, IsConnectivity(err))
	require.Equal(t, AvailabilityUnknown, got)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts), "probes must not retry")
}

func TestProbeTransportErrorIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	got, err := testClient(url).Probe(context.Background(), url+"/blender.tar.gz")
	require.Error(t, err)
	require.True(t, IsConnectivity(err))
	require.Equal(t, AvailabilityUnknown, got)
}

func TestCheckConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	require.NoError(t, testClient(srv.URL).CheckConnection(context.Background()))

	url := srv.URL
	srv.Close()
	err := testClient(url).CheckConnection(context.Background())
	require.Error(t, err)
	require.True(t, IsConnectivity(err))
}

func TestConnectivityErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := &ConnectivityError{URL: "https://releases.example.com", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "releases.example.com")
}
