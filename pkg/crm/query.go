package crm

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/state"
)

// queryOptionsHeader sets the page size of query results.
const queryOptionsHeader = "Sforce-Query-Options"

// BuildQuery renders the SOQL query for entry. Synced properties are selected
// in sorted order; with a replication key the query starts at the bookmark
// and is ordered by the key.
func BuildQuery(entry catalog.CatalogEntry, st *state.State) (string, error) {
	fields := make([]string, 0, len(entry.Schema.Properties))
	for name, prop := range entry.Schema.Properties {
		if prop.Synced() {
			fields = append(fields, name)
		}
	}
	if len(fields) == 0 {
		return "", errors.New(errors.ErrorTypeData, "no synced properties").
			WithDetail("stream", entry.TapStreamID)
	}
	sort.Strings(fields)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(fields, ","), entry.TapStreamID)

	if entry.HasReplicationKey() {
		key := entry.Key()
		if bookmark, ok := st.Bookmark(entry.TapStreamID, key); ok {
			fmt.Fprintf(&b, " WHERE %s >= %s", key, soqlLiteral(bookmark))
		}
		fmt.Fprintf(&b, " ORDER BY %s ASC", key)
	}
	return b.String(), nil
}

// soqlLiteral formats a bookmark for a WHERE clause. Timestamps are written
// unquoted in UTC with second precision; the comparison is >= so truncation
// only widens the window.
func soqlLiteral(v any) string {
	switch val := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05Z")
		}
		return "'" + strings.ReplaceAll(val, "'", `\'`) + "'"
	default:
		return fmt.Sprint(val)
	}
}

type queryPage struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []catalog.Record `json:"records"`
}

// RecordIterator yields the records of one query, page by page. It is
// finite and cannot be restarted.
type RecordIterator struct {
	client *Client
	next   string
	buf    []catalog.Record
	done   bool
	pages  int
}

// Query starts the query for entry from the bookmark held in st. No request
// is made until the first call to Next.
func (c *Client) Query(entry catalog.CatalogEntry, st *state.State) (*RecordIterator, error) {
	soql, err := BuildQuery(entry, st)
	if err != nil {
		return nil, err
	}
	return &RecordIterator{
		client: c,
		next:   c.dataURL("/query?q=" + url.QueryEscape(soql)),
	}, nil
}

// Next returns the next record, or io.EOF once the query is exhausted.
func (it *RecordIterator) Next(ctx context.Context) (catalog.Record, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, io.EOF
		}
		if err := it.fetch(ctx); err != nil {
			return nil, err
		}
	}

	rec := it.buf[0]
	it.buf[0] = nil
	it.buf = it.buf[1:]
	return rec, nil
}

// Pages returns the number of pages fetched so far.
func (it *RecordIterator) Pages() int {
	return it.pages
}

func (it *RecordIterator) fetch(ctx context.Context) error {
	headers := map[string]string{
		queryOptionsHeader: fmt.Sprintf("batchSize=%d", it.client.cfg.PageSize),
	}

	var page queryPage
	if err := it.client.get(ctx, it.next, headers, &page); err != nil {
		return err
	}
	it.pages++
	it.buf = page.Records

	if page.Done || page.NextRecordsURL == "" {
		it.done = true
		return nil
	}
	it.next = it.client.absoluteURL(page.NextRecordsURL)
	return nil
}
