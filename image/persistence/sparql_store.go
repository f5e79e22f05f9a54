// Package persistence provides the metadata store implementations: one
// backed by the application's SPARQL endpoint and an embedded SQLite one
// for single-binary deployments and tests. Both satisfy the same
// domain.MetadataStore contract.
package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/madnificent/mu-image-service/image/domain"
	"github.com/madnificent/mu-image-service/shared/sparql"
)

var _ domain.MetadataStore = (*SPARQLStore)(nil)

// DefaultGraph is the application graph all records live in.
const DefaultGraph = "http://mu.semte.ch/application"

const prefixes = `PREFIX nfo: <http://www.semanticdesktop.org/ontologies/2007/03/22/nfo#>
PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX ext: <http://mu.semte.ch/vocabularies/ext/>
PREFIX nie: <http://www.semanticdesktop.org/ontologies/2007/01/19/nie#>
PREFIX dct: <http://purl.org/dc/terms/>
`

// SPARQLStore implements domain.MetadataStore against a graph store
// speaking the SPARQL 1.1 protocol.
type SPARQLStore struct {
	client *sparql.Client
	graph  string
}

// NewSPARQLStore creates a store writing to the given application graph.
// An empty graph selects DefaultGraph.
func NewSPARQLStore(client *sparql.Client, graph string) *SPARQLStore {
	if graph == "" {
		graph = DefaultGraph
	}

	return &SPARQLStore{
		client: client,
		graph:  graph,
	}
}

const lookupSourceQuery = `%sSELECT ?fdo ?format ?location WHERE {
  GRAPH %s {
    ?fdo mu:uuid %s ;
      a nfo:FileDataObject ;
      dct:format ?format .
    ?location nie:dataSource ?fdo .
  }
} LIMIT 1`

// LookupSource resolves a source image by its stable identifier. The bound
// ?location is the storage record's URI, which in the file model is itself
// the scheme-prefixed physical reference.
func (s *SPARQLStore) LookupSource(ctx context.Context, id string) (*domain.SourceImage, error) {
	query := fmt.Sprintf(lookupSourceQuery, prefixes, sparql.EscapeURI(s.graph), sparql.EscapeString(id))

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to look up source image %q: %w", id, err)
	}

	if len(results.Results.Bindings) == 0 {
		return nil, fmt.Errorf("source image %q: %w", id, domain.ErrNotFound)
	}

	binding := results.Results.Bindings[0]

	return &domain.SourceImage{
		ID:     id,
		URI:    binding.Value("fdo"),
		Format: binding.Value("format"),
		Location: domain.StorageLocation{
			Reference: binding.Value("location"),
		},
	}, nil
}

const lookupDerivedQuery = `%sSELECT ?location WHERE {
  GRAPH %s {
    %s ext:hasDerivedImage ?derived .
    ?derived a nfo:FileDataObject .
%s    ?location nie:dataSource ?derived .
  }
} LIMIT 1`

// LookupDerived finds a cached derivative for the exact cache key. The
// match is syntactic on which dimension attributes are present: a
// constrained axis must carry the requested value, an unconstrained axis
// must be absent from the record.
func (s *SPARQLStore) LookupDerived(ctx context.Context, sourceURI string, width, height int) (*domain.StorageLocation, error) {
	query := fmt.Sprintf(lookupDerivedQuery,
		prefixes,
		sparql.EscapeURI(s.graph),
		sparql.EscapeURI(sourceURI),
		dimensionPatterns(width, height),
	)

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to look up derived image: %w", err)
	}

	if len(results.Results.Bindings) == 0 {
		return nil, domain.ErrNotFound
	}

	return &domain.StorageLocation{
		Reference: results.Results.Bindings[0].Value("location"),
	}, nil
}

// dimensionPatterns renders the triple patterns pinning the cache key:
// a value match for a set axis, FILTER NOT EXISTS for an unset one.
func dimensionPatterns(width, height int) string {
	var b strings.Builder

	writeAxis := func(predicate string, value int) {
		if value > 0 {
			fmt.Fprintf(&b, "    ?derived %s %s .\n", predicate, sparql.EscapeString(strconv.Itoa(value)))
		} else {
			fmt.Fprintf(&b, "    FILTER NOT EXISTS { ?derived %s ?any%s }\n", predicate, predicate[len("ext:image"):])
		}
	}

	writeAxis("ext:imageWidth", width)
	writeAxis("ext:imageHeight", height)

	return b.String()
}

const recordDerivedUpdate = `%sINSERT DATA {
  GRAPH %s {
    %s ext:hasDerivedImage %s .
    %s a nfo:FileDataObject ;
      dct:format %s ;
      mu:uuid %s .
%s    %s mu:uuid %s ;
      nie:dataSource %s .
  }
}`

// RecordDerived creates the derivative and storage location records and
// their linking relations in one atomic write. Dimensions are stored as
// string literals, and only when the axis was constrained.
func (s *SPARQLStore) RecordDerived(ctx context.Context, img *domain.DerivedImage) error {
	derived := sparql.EscapeURI(img.URI)

	var dims strings.Builder
	if img.Width > 0 {
		fmt.Fprintf(&dims, "    %s ext:imageWidth %s .\n", derived, sparql.EscapeString(strconv.Itoa(img.Width)))
	}
	if img.Height > 0 {
		fmt.Fprintf(&dims, "    %s ext:imageHeight %s .\n", derived, sparql.EscapeString(strconv.Itoa(img.Height)))
	}

	update := fmt.Sprintf(recordDerivedUpdate,
		prefixes,
		sparql.EscapeURI(s.graph),
		sparql.EscapeURI(img.SourceURI), derived,
		derived,
		sparql.EscapeString(img.Format),
		sparql.EscapeString(img.ID),
		dims.String(),
		sparql.EscapeURI(img.Location.Reference),
		sparql.EscapeString(img.Location.ID),
		derived,
	)

	if err := s.client.Update(ctx, update); err != nil {
		return fmt.Errorf("failed to record derived image: %w", err)
	}

	return nil
}
