package repository

import (
	"bytes"
	"encoding/json"
)

// Metadata holds versioning info for optimistic reloads.
type Metadata struct {
	LastUpdate int64 `json:"lastUpdate"` // Unix timestamp in milliseconds
}

// CacheSnapshot is the persisted form of every named response cache.
type CacheSnapshot struct {
	Metadata Metadata     `json:"metadata"`
	Current  string       `json:"current"`
	Caches   []NamedCache `json:"caches" validate:"dive"`
}

// NamedCache is one cache generation, usually named after a cache version.
type NamedCache struct {
	Name    string           `json:"name" validate:"required"`
	Entries []CachedResponse `json:"entries" validate:"dive"`
}

// CachedResponse is a captured response keyed by absolute URL.
type CachedResponse struct {
	URL      string              `json:"url" validate:"required,url"`
	Status   int                 `json:"status" validate:"min=100,max=599"`
	Header   map[string][]string `json:"header,omitempty"`
	Body     []byte              `json:"body"`
	StoredAt int64               `json:"storedAt"`
}

// Manifest lists the assets of one cache version. It is optional: without it
// the compiled-in asset list of the front-end is used.
type Manifest struct {
	Version      string   `json:"version" validate:"required"`
	Assets       []string `json:"assets" validate:"dive,required"`
	OfflinePages []string `json:"offlinePages" validate:"dive,required"`
}

// ApplyDefaults sets fallback values after decode.
func (s *CacheSnapshot) ApplyDefaults() {
	if s.Caches == nil {
		s.Caches = []NamedCache{}
	}
	for i := range s.Caches {
		if s.Caches[i].Entries == nil {
			s.Caches[i].Entries = []CachedResponse{}
		}
	}
}

func (m *Manifest) applyDefaults() {
	if m.Assets == nil {
		m.Assets = []string{}
	}
	if m.OfflinePages == nil {
		m.OfflinePages = []string{}
	}
}

// AreSnapshotsEqual compares two snapshots ignoring Metadata.
func AreSnapshotsEqual(a, b *CacheSnapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	ac, bc := *a, *b
	ac.Metadata, bc.Metadata = Metadata{}, Metadata{}
	ac.ApplyDefaults()
	bc.ApplyDefaults()

	aBytes, err := json.Marshal(ac)
	if err != nil {
		return false
	}
	bBytes, err := json.Marshal(bc)
	if err != nil {
		return false
	}
	return bytes.Equal(aBytes, bBytes)
}
