package catalog

import (
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/crmtap/pkg/errors"
)

// DefaultPath is where discovery writes the catalog.
const DefaultPath = "/tmp/catalog.json"

// Marshal renders doc as indented JSON. Property maps are written with
// sorted keys so equal documents produce identical bytes.
func Marshal(doc *Document) ([]byte, error) {
	if doc.Streams == nil {
		doc = &Document{Streams: []CatalogEntry{}}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal catalog")
	}
	return append(data, '\n'), nil
}

// Write writes doc to w.
func Write(w io.Writer, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write catalog")
	}
	return nil
}

// WriteFile writes doc to path, replacing any previous content.
func WriteFile(path string, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // catalog is not secret
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write catalog file").
			WithDetail("path", path)
	}
	return nil
}

// Load decodes a catalog. Every entry must carry a tap_stream_id; an entry
// with no stream name takes its id.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode catalog")
	}

	for i := range doc.Streams {
		e := &doc.Streams[i]
		if e.TapStreamID == "" {
			return nil, errors.Newf(errors.ErrorTypeData, "catalog entry %d has no tap_stream_id", i)
		}
		if e.Stream == "" {
			e.Stream = e.TapStreamID
		}
		if e.Schema.Properties == nil {
			e.Schema.Properties = map[string]PropertySchema{}
		}
	}
	return &doc, nil
}

// LoadFile decodes the catalog at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the --catalog flag
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open catalog file").
			WithDetail("path", path)
	}
	defer f.Close()
	return Load(f)
}
