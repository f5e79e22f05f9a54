package domain

// SourceImage is an already-ingested original image this service derives
// renditions from. It is created and owned by the file ingestion process;
// the resolver only ever reads it.
type SourceImage struct {
	ID       string // stable identifier (mu:uuid) used in request URLs
	URI      string // graph record URI of the file data object
	Format   string // encoded image format, e.g. "image/png"
	Location StorageLocation
}
