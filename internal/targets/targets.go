package targets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DownloadTarget is one fixed-size payload URL. Bytes is the nominal
// payload size used for sanity checks; measurement always counts the
// bytes actually transferred.
type DownloadTarget struct {
	URL   string `yaml:"url" json:"url"`
	Bytes int64  `yaml:"bytes" json:"bytes"`
}

// Server is one probe endpoint set: a latency URL, an optional upload
// URL and a list of download targets of increasing size.
type Server struct {
	Name      string           `yaml:"name" json:"name"`
	Location  string           `yaml:"location,omitempty" json:"location,omitempty"`
	PingURL   string           `yaml:"ping_url" json:"ping_url"`
	UploadURL string           `yaml:"upload_url,omitempty" json:"upload_url,omitempty"`
	Downloads []DownloadTarget `yaml:"downloads" json:"downloads"`
}

// Validate checks that the server definition is usable for probing.
func (s Server) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(s.Downloads) == 0 {
		return fmt.Errorf("server %s has no download targets", s.Name)
	}
	for i, d := range s.Downloads {
		if d.URL == "" {
			return fmt.Errorf("server %s download %d has no URL", s.Name, i)
		}
		if d.Bytes <= 0 {
			return fmt.Errorf("server %s download %d has invalid size %d", s.Name, i, d.Bytes)
		}
	}
	return nil
}

// SmallestDownload returns the smallest configured download target.
func (s Server) SmallestDownload() (DownloadTarget, bool) {
	if len(s.Downloads) == 0 {
		return DownloadTarget{}, false
	}
	smallest := s.Downloads[0]
	for _, d := range s.Downloads[1:] {
		if d.Bytes < smallest.Bytes {
			smallest = d
		}
	}
	return smallest, true
}

// DefaultServers returns the built-in probe endpoints.
func DefaultServers() []Server {
	return []Server{
		{
			Name:      "speed.cloudflare.com",
			Location:  "global anycast",
			PingURL:   "https://speed.cloudflare.com/__down?bytes=0",
			UploadURL: "https://speed.cloudflare.com/__up",
			Downloads: []DownloadTarget{
				{URL: "https://speed.cloudflare.com/__down?bytes=2000000", Bytes: 2_000_000},
				{URL: "https://speed.cloudflare.com/__down?bytes=5000000", Bytes: 5_000_000},
				{URL: "https://speed.cloudflare.com/__down?bytes=10000000", Bytes: 10_000_000},
			},
		},
	}
}

// manifest is the wire format served by an upstream target list.
type manifest struct {
	Servers []Server `json:"servers"`
}

// Registry holds the probe servers and can refresh them from an
// upstream manifest at runtime.
type Registry struct {
	mu          sync.RWMutex
	servers     []Server
	manifestURL string
	client      *http.Client
	refreshedAt time.Time
	log         *logrus.Entry
}

// NewRegistry creates a registry seeded with the given servers. The
// manifest URL may be empty, in which case Refresh is unavailable.
func NewRegistry(servers []Server, manifestURL string, log *logrus.Logger) *Registry {
	copied := make([]Server, len(servers))
	copy(copied, servers)
	return &Registry{
		servers:     copied,
		manifestURL: manifestURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log.WithField("component", "targets"),
	}
}

// Servers returns a copy of the current server list.
func (r *Registry) Servers() []Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	servers := make([]Server, len(r.servers))
	copy(servers, r.servers)
	return servers
}

// Count returns the number of registered servers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// HasServers checks whether any probe server is registered.
func (r *Registry) HasServers() bool {
	return r.Count() > 0
}

// First returns the first registered server.
func (r *Registry) First() (Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.servers) == 0 {
		return Server{}, false
	}
	return r.servers[0], true
}

// LastRefresh returns when the registry last replaced its server list,
// or the zero time if it never has.
func (r *Registry) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// Refresh fetches the upstream manifest and replaces the server list.
// The current list is kept untouched on any failure.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	if r.manifestURL == "" {
		return 0, fmt.Errorf("no manifest URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.manifestURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build manifest request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("manifest fetch failed with status %d", resp.StatusCode)
	}

	var m manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return 0, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if len(m.Servers) == 0 {
		return 0, fmt.Errorf("manifest contains no servers")
	}
	for _, s := range m.Servers {
		if err := s.Validate(); err != nil {
			return 0, fmt.Errorf("manifest rejected: %w", err)
		}
	}

	r.mu.Lock()
	r.servers = m.Servers
	r.refreshedAt = time.Now()
	r.mu.Unlock()

	r.log.WithField("servers", len(m.Servers)).Info("probe target list refreshed")
	return len(m.Servers), nil
}
