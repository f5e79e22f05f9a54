// Package application implements the cache-resolution and derivation
// protocol: decide whether a requested rendition exists, locate it, or
// create it exactly once per request, record it durably, and stream bytes
// to the caller without ever blocking on the metadata write.
package application

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/madnificent/mu-image-service/image/domain"
	"github.com/madnificent/mu-image-service/internal/metrics"
)

// ResizeEngine is the opaque transformation capability: given a source
// byte stream and target dimensions (0 meaning unconstrained), it
// produces a re-encoded stream in the same format.
type ResizeEngine interface {
	Resize(src io.Reader, format string, width, height int) (io.ReadCloser, error)
}

// Resolver serves renditions from the cache and orchestrates derivation
// plus write-behind persistence on a miss.
//
// No mutual exclusion exists across concurrent misses for the same cache
// key: both requests derive and persist independently, and two records
// may end up created for one key. That race is accepted; lookups take the
// first match.
type Resolver struct {
	metadata domain.MetadataStore
	blobs    domain.BlobStore
	engine   ResizeEngine

	// Persistence runs on this context, not the request's: a client
	// disconnect must never cancel an in-flight write-behind.
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// NewResolver creates a Resolver over the given collaborators.
func NewResolver(metadata domain.MetadataStore, blobs domain.BlobStore, engine ResizeEngine) *Resolver {
	ctx, cancel := context.WithCancel(context.Background())

	return &Resolver{
		metadata: metadata,
		blobs:    blobs,
		engine:   engine,
		ctx:      ctx,
		cancel:   cancel,
		wg:       &sync.WaitGroup{},
	}
}

// Close waits for in-flight write-behind persistence to drain, so a
// shutdown cannot lose a blob/metadata pair mid-write.
func (r *Resolver) Close() error {
	r.wg.Wait()
	r.cancel()

	return nil
}

// Resolve returns a byte stream and content type for the requested
// rendition. Dimensions of 0 are unconstrained. Returns
// domain.ErrNotFound when no source image carries the identifier.
func (r *Resolver) Resolve(ctx context.Context, id string, width, height int) (io.ReadCloser, string, error) {
	source, err := r.metadata.LookupSource(ctx, id)
	if err != nil {
		return nil, "", err
	}

	location, err := r.metadata.LookupDerived(ctx, source.URI, width, height)
	switch {
	case err == nil:
		// Counted on the lookup outcome, so hits and misses partition
		// requests even when the blob open below fails.
		metrics.CacheHits.Inc()
		stream, err := r.blobs.Open(ctx, location.Reference)
		if err != nil {
			return nil, "", err
		}
		return stream, source.Format, nil

	case errors.Is(err, domain.ErrNotFound):
		metrics.CacheMisses.Inc()
		stream, err := r.derive(ctx, source, width, height)
		if err != nil {
			return nil, "", err
		}
		return stream, source.Format, nil

	default:
		return nil, "", err
	}
}

// derive starts the transform and hands its output to the pump, which
// feeds the caller and the blob sink concurrently. The returned stream
// begins flowing before any persistence happens.
func (r *Resolver) derive(ctx context.Context, source *domain.SourceImage, width, height int) (io.ReadCloser, error) {
	sourceStream, err := r.blobs.Open(ctx, source.Location.Reference)
	if err != nil {
		return nil, err
	}

	transformed, err := r.engine.Resize(sourceStream, source.Format, width, height)
	if err != nil {
		sourceStream.Close()
		return nil, err
	}

	derivedID := uuid.NewString()
	img := &domain.DerivedImage{
		ID:        derivedID,
		URI:       domain.DerivedURI(derivedID),
		SourceURI: source.URI,
		Format:    source.Format,
		Width:     width,
		Height:    height,
		Location: domain.StorageLocation{
			ID: uuid.NewString(),
		},
	}

	writer, err := r.blobs.Create(r.ctx, img.Location.ID)
	if err != nil {
		transformed.Close()
		sourceStream.Close()
		return nil, err
	}

	out := newFanout()
	r.wg.Add(1)
	go r.pump(sourceStream, transformed, writer, img, out)

	return out, nil
}

// pump drains the transform output into the blob sink and the client
// stream, then finishes the write-behind: commit the blob, record the
// metadata. Failures past the stream start are logged, never surfaced —
// the caller's response is already flowing.
func (r *Resolver) pump(sourceStream, transformed io.ReadCloser, writer domain.BlobWriter, img *domain.DerivedImage, out *fanout) {
	defer r.wg.Done()
	defer sourceStream.Close()
	defer transformed.Close()

	var sinkErr error
	buf := make([]byte, 32*1024)
	for {
		n, err := transformed.Read(buf)
		if n > 0 {
			if sinkErr == nil {
				if _, werr := writer.Write(buf[:n]); werr != nil {
					sinkErr = werr
					log.Error().Err(werr).Str("source", img.SourceURI).Msg("Failed to write derived image blob")
				}
			}
			out.push(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Transform failed mid-stream: truncate the response, persist
			// nothing.
			out.finish(err)
			_ = writer.Discard()
			metrics.Derivations.WithLabelValues("false").Inc()
			log.Error().Err(err).Str("source", img.SourceURI).Msg("Image transform failed")
			return
		}
	}

	// The response completes here; persistence continues on its own.
	out.finish(nil)

	if sinkErr != nil {
		_ = writer.Discard()
		metrics.Derivations.WithLabelValues("false").Inc()
		return
	}

	reference, err := writer.Commit()
	if err != nil {
		metrics.Derivations.WithLabelValues("false").Inc()
		log.Error().Err(err).Str("source", img.SourceURI).Msg("Failed to commit derived image blob")
		return
	}
	img.Location.Reference = reference

	// The metadata write only ever happens after the blob is fully
	// committed, so no record can reference missing bytes.
	if err := r.metadata.RecordDerived(r.ctx, img); err != nil {
		metrics.Derivations.WithLabelValues("false").Inc()
		log.Error().Err(err).
			Str("source", img.SourceURI).
			Int("width", img.Width).
			Int("height", img.Height).
			Msg("Failed to record derived image")
		return
	}

	metrics.Derivations.WithLabelValues("true").Inc()
}
