package domain

// DerivedImage represents one cached rendition of a source image.
// Records are created once after the blob write completes and are never
// mutated or deleted.
//
// Width and Height use 0 as "unset": a dimension the caller did not
// constrain is omitted from the stored record entirely, it is never
// recorded as zero.
type DerivedImage struct {
	ID        string // stable identifier (mu:uuid) of the derived record
	URI       string // graph record URI of the derived file data object
	SourceURI string // URI of the source it was derived from
	Format    string // same encoded format as the source
	Width     int
	Height    int
	Location  StorageLocation
}

// derivedURIPrefix namespaces the record URIs this service mints.
const derivedURIPrefix = "http://mu.semte.ch/services/image-service/"

// DerivedURI mints the graph record URI for a freshly derived image.
func DerivedURI(id string) string {
	return derivedURIPrefix + id
}

// StorageLocation maps a generated identifier to a blob's physical
// location. The reference is a scheme-prefixed logical path, e.g.
// "share://derivedImages/<uuid>".
type StorageLocation struct {
	ID        string
	Reference string
}
