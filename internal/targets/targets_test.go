package targets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(name string) Server {
	return Server{
		Name:    name,
		PingURL: "http://example.com/ping",
		Downloads: []DownloadTarget{
			{URL: "http://example.com/5m", Bytes: 5_000_000},
			{URL: "http://example.com/1m", Bytes: 1_000_000},
		},
	}
}

func TestServerValidate(t *testing.T) {
	assert.NoError(t, testServer("ok").Validate())

	s := testServer("")
	assert.Error(t, s.Validate())

	s = testServer("no-downloads")
	s.Downloads = nil
	assert.Error(t, s.Validate())

	s = testServer("bad-size")
	s.Downloads[0].Bytes = 0
	assert.Error(t, s.Validate())

	s = testServer("no-url")
	s.Downloads[1].URL = ""
	assert.Error(t, s.Validate())
}

func TestSmallestDownload(t *testing.T) {
	s := testServer("ok")
	d, ok := s.SmallestDownload()
	require.True(t, ok)
	assert.Equal(t, int64(1_000_000), d.Bytes)

	s.Downloads = nil
	_, ok = s.SmallestDownload()
	assert.False(t, ok)
}

func TestDefaultServers(t *testing.T) {
	servers := DefaultServers()
	require.Len(t, servers, 1)
	require.NoError(t, servers[0].Validate())
	assert.Len(t, servers[0].Downloads, 3)
	assert.NotEmpty(t, servers[0].UploadURL)
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewRegistry([]Server{testServer("a")}, "", logrus.New())

	servers := r.Servers()
	servers[0].Name = "mutated"

	fresh := r.Servers()
	assert.Equal(t, "a", fresh[0].Name)
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.HasServers())

	first, ok := r.First()
	require.True(t, ok)
	assert.Equal(t, "a", first.Name)
}

func TestRefreshReplacesServers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"servers":[
			{"name":"edge-1","ping_url":"http://edge-1/ping","downloads":[{"url":"http://edge-1/2m","bytes":2000000}]},
			{"name":"edge-2","ping_url":"http://edge-2/ping","downloads":[{"url":"http://edge-2/2m","bytes":2000000}]}
		]}`))
	}))
	defer ts.Close()

	r := NewRegistry([]Server{testServer("seed")}, ts.URL, logrus.New())
	assert.True(t, r.LastRefresh().IsZero())

	n, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, r.Count())
	assert.False(t, r.LastRefresh().IsZero())

	servers := r.Servers()
	assert.Equal(t, "edge-1", servers[0].Name)
}

func TestRefreshKeepsServersOnFailure(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"upstream error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"empty manifest": func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"servers":[]}`))
		},
		"invalid server": func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"servers":[{"name":"broken","downloads":[]}]}`))
		},
		"not json": func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("nope"))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(handler)
			defer ts.Close()

			r := NewRegistry([]Server{testServer("seed")}, ts.URL, logrus.New())
			_, err := r.Refresh(context.Background())
			assert.Error(t, err)

			servers := r.Servers()
			require.Len(t, servers, 1)
			assert.Equal(t, "seed", servers[0].Name)
		})
	}
}

func TestRefreshWithoutManifestURL(t *testing.T) {
	r := NewRegistry(DefaultServers(), "", logrus.New())
	_, err := r.Refresh(context.Background())
	assert.Error(t, err)
}
