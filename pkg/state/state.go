// Package state holds the resumable bookmark document and builds it at the
// start of every sync run.
package state

import (
	"bytes"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/errors"
)

// Bookmarks maps stream id to cursor field to cursor value.
type Bookmarks map[string]map[string]any

// State is the bookmark document emitted after every synced record.
// It has a single writer for the duration of a run.
type State struct {
	Bookmarks Bookmarks `json:"bookmarks"`
}

// New returns an empty State.
func New() *State {
	return &State{Bookmarks: Bookmarks{}}
}

// Build derives the State for a run. Every selected entry with a replication
// key gets its previous bookmark, or startDate when there is none. Entries
// that are not selected or have no replication key are left out, and any
// bookmark they held in prev is dropped.
func Build(prev *State, doc *catalog.Document, startDate string) *State {
	next := New()
	for _, entry := range doc.Streams {
		if !entry.Schema.Selected || !entry.HasReplicationKey() {
			continue
		}

		key := entry.Key()
		if value, ok := prev.Bookmark(entry.TapStreamID, key); ok {
			next.SetBookmark(entry.TapStreamID, key, value)
			continue
		}
		next.SetBookmark(entry.TapStreamID, key, startDate)
	}
	return next
}

// Bookmark returns the cursor value for stream and key. Null and empty-string
// values count as absent. A nil State has no bookmarks.
func (s *State) Bookmark(stream, key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	fields, ok := s.Bookmarks[stream]
	if !ok {
		return nil, false
	}
	value, ok := fields[key]
	if !ok || value == nil {
		return nil, false
	}
	if str, isString := value.(string); isString && str == "" {
		return nil, false
	}
	return value, true
}

// SetBookmark records value as the cursor for stream and key.
func (s *State) SetBookmark(stream, key string, value any) {
	if s.Bookmarks == nil {
		s.Bookmarks = Bookmarks{}
	}
	fields, ok := s.Bookmarks[stream]
	if !ok {
		fields = make(map[string]any, 1)
		s.Bookmarks[stream] = fields
	}
	fields[key] = value
}

// Clone returns a deep copy of the bookmark maps. Cursor values are scalars
// and are shared.
func (s *State) Clone() *State {
	out := New()
	if s == nil {
		return out
	}
	for stream, fields := range s.Bookmarks {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		out.Bookmarks[stream] = copied
	}
	return out
}

// MarshalJSON writes an empty bookmark map as {} rather than null.
func (s *State) MarshalJSON() ([]byte, error) {
	bookmarks := s.Bookmarks
	if bookmarks == nil {
		bookmarks = Bookmarks{}
	}
	return json.Marshal(struct {
		Bookmarks Bookmarks `json:"bookmarks"`
	}{bookmarks})
}

// Load decodes a state document. Empty input yields an empty State.
func Load(r io.Reader) (*State, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}

	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode state")
	}
	if s.Bookmarks == nil {
		s.Bookmarks = Bookmarks{}
	}
	return s, nil
}

// LoadFile decodes the state document at path.
func LoadFile(path string) (*State, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the --state flag
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open state file").
			WithDetail("path", path)
	}
	defer f.Close()
	return Load(f)
}
