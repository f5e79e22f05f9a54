package persistence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/madnificent/mu-image-service/image/domain"
	"github.com/madnificent/mu-image-service/shared/sparql"
)

// fakeEndpoint records the last query/update and serves canned bindings.
type fakeEndpoint struct {
	lastQuery  string
	lastUpdate string
	response   string
}

func (f *fakeEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if q := r.PostFormValue("query"); q != "" {
			f.lastQuery = q
		}
		if u := r.PostFormValue("update"); u != "" {
			f.lastUpdate = u
		}

		response := f.response
		if response == "" {
			response = `{"results": {"bindings": []}}`
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(response))
	}
}

func setupSPARQLStore(t *testing.T) (*SPARQLStore, *fakeEndpoint) {
	t.Helper()

	endpoint := &fakeEndpoint{}
	srv := httptest.NewServer(endpoint.handler())
	t.Cleanup(srv.Close)

	return NewSPARQLStore(sparql.NewClient(srv.URL), ""), endpoint
}

func TestSPARQLStoreLookupSource(t *testing.T) {
	store, endpoint := setupSPARQLStore(t)
	endpoint.response = `{
		"results": {
			"bindings": [{
				"fdo": {"type": "uri", "value": "http://example.org/files/1"},
				"format": {"type": "literal", "value": "image/jpeg"},
				"location": {"type": "uri", "value": "share://original/abc"}
			}]
		}
	}`

	src, err := store.LookupSource(context.Background(), "source-1")
	if err != nil {
		t.Fatalf("LookupSource failed: %v", err)
	}

	if src.URI != "http://example.org/files/1" {
		t.Errorf("URI = %q, want the fdo binding", src.URI)
	}
	if src.Format != "image/jpeg" {
		t.Errorf("Format = %q, want image/jpeg", src.Format)
	}
	if src.Location.Reference != "share://original/abc" {
		t.Errorf("Reference = %q, want share://original/abc", src.Location.Reference)
	}

	for _, fragment := range []string{
		`mu:uuid "source-1"`,
		"a nfo:FileDataObject",
		"dct:format ?format",
		"nie:dataSource ?fdo",
		"GRAPH <http://mu.semte.ch/application>",
	} {
		if !strings.Contains(endpoint.lastQuery, fragment) {
			t.Errorf("lookup query missing %q:\n%s", fragment, endpoint.lastQuery)
		}
	}
}

func TestSPARQLStoreLookupSourceMissing(t *testing.T) {
	store, _ := setupSPARQLStore(t)

	_, err := store.LookupSource(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LookupSource with no bindings = %v, want ErrNotFound", err)
	}
}

func TestSPARQLStoreLookupSourceEscapesID(t *testing.T) {
	store, endpoint := setupSPARQLStore(t)

	store.LookupSource(context.Background(), `x". ?s ?p "y`)

	if !strings.Contains(endpoint.lastQuery, `"x\". ?s ?p \"y"`) {
		t.Errorf("identifier not structurally escaped:\n%s", endpoint.lastQuery)
	}
}

func TestSPARQLStoreLookupDerivedConstrained(t *testing.T) {
	store, endpoint := setupSPARQLStore(t)
	endpoint.response = `{
		"results": {
			"bindings": [{
				"location": {"type": "uri", "value": "share://derivedImages/d1"}
			}]
		}
	}`

	loc, err := store.LookupDerived(context.Background(), "http://example.org/files/1", 100, 200)
	if err != nil {
		t.Fatalf("LookupDerived failed: %v", err)
	}
	if loc.Reference != "share://derivedImages/d1" {
		t.Errorf("Reference = %q, want share://derivedImages/d1", loc.Reference)
	}

	for _, fragment := range []string{
		"<http://example.org/files/1> ext:hasDerivedImage ?derived",
		`ext:imageWidth "100"`,
		`ext:imageHeight "200"`,
	} {
		if !strings.Contains(endpoint.lastQuery, fragment) {
			t.Errorf("query missing %q:\n%s", fragment, endpoint.lastQuery)
		}
	}
	if strings.Contains(endpoint.lastQuery, "FILTER NOT EXISTS") {
		t.Errorf("fully constrained query must not exclude attributes:\n%s", endpoint.lastQuery)
	}
}

// An unconstrained axis only matches records lacking that attribute, so
// the query must actively exclude it rather than leave it unbound.
func TestSPARQLStoreLookupDerivedUnsetAxes(t *testing.T) {
	store, endpoint := setupSPARQLStore(t)

	_, err := store.LookupDerived(context.Background(), "http://example.org/files/1", 100, 0)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LookupDerived with no bindings = %v, want ErrNotFound", err)
	}

	if !strings.Contains(endpoint.lastQuery, `ext:imageWidth "100"`) {
		t.Errorf("width constraint missing:\n%s", endpoint.lastQuery)
	}
	if !strings.Contains(endpoint.lastQuery, "FILTER NOT EXISTS { ?derived ext:imageHeight") {
		t.Errorf("unset height must be excluded with FILTER NOT EXISTS:\n%s", endpoint.lastQuery)
	}

	store.LookupDerived(context.Background(), "http://example.org/files/1", 0, 0)

	if !strings.Contains(endpoint.lastQuery, "FILTER NOT EXISTS { ?derived ext:imageWidth") ||
		!strings.Contains(endpoint.lastQuery, "FILTER NOT EXISTS { ?derived ext:imageHeight") {
		t.Errorf("fully unconstrained key must exclude both axes:\n%s", endpoint.lastQuery)
	}
}

func TestSPARQLStoreRecordDerived(t *testing.T) {
	store, endpoint := setupSPARQLStore(t)

	img := &domain.DerivedImage{
		ID:        "fdo-uuid",
		URI:       domain.DerivedURI("fdo-uuid"),
		SourceURI: "http://example.org/files/1",
		Format:    "image/png",
		Width:     100,
		Location: domain.StorageLocation{
			ID:        "path-uuid",
			Reference: "share://derivedImages/path-uuid",
		},
	}

	if err := store.RecordDerived(context.Background(), img); err != nil {
		t.Fatalf("RecordDerived failed: %v", err)
	}

	for _, fragment := range []string{
		"INSERT DATA",
		"GRAPH <http://mu.semte.ch/application>",
		"<http://example.org/files/1> ext:hasDerivedImage <http://mu.semte.ch/services/image-service/fdo-uuid>",
		"a nfo:FileDataObject",
		`dct:format "image/png"`,
		`mu:uuid "fdo-uuid"`,
		`ext:imageWidth "100"`,
		`<share://derivedImages/path-uuid> mu:uuid "path-uuid"`,
		"nie:dataSource <http://mu.semte.ch/services/image-service/fdo-uuid>",
	} {
		if !strings.Contains(endpoint.lastUpdate, fragment) {
			t.Errorf("update missing %q:\n%s", fragment, endpoint.lastUpdate)
		}
	}

	// The unset height must not be recorded at all, not even as zero.
	if strings.Contains(endpoint.lastUpdate, "ext:imageHeight") {
		t.Errorf("unset height must be omitted from the record:\n%s", endpoint.lastUpdate)
	}
}
