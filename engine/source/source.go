// Package source implements ingestion adapters: web crawling, file-share
// polling, and object-store listing, each yielding raw Documents for the
// normalizer.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/beaconrag/beacon/engine/domain"
)

// Document is one raw file discovered by an Adapter, not yet decoded.
type Document struct {
	DisplayName string
	SourceURL   string
	MimeType    string
	Body        []byte
}

// ContentHash returns the content-addressed hash used for SourceFile dedup.
func (d Document) ContentHash() string {
	h := sha256.Sum256(d.Body)
	return hex.EncodeToString(h[:])
}

// Adapter discovers and fetches Documents from one kind of source location.
type Adapter interface {
	// Fetch streams discovered documents on the returned channel, closing it
	// when discovery completes, the context is cancelled, or depth is
	// exhausted. Errors are delivered as domain.Error values on errCh.
	Fetch(ctx context.Context, sourceURL string, depth int) (<-chan Document, <-chan error)
}

// Scheme identifies which Adapter a source URL routes to.
type Scheme string

const (
	SchemeHTTP   Scheme = "http"
	SchemeHTTPS  Scheme = "https"
	SchemeS3     Scheme = "s3"
	SchemeGCS    Scheme = "gs"
	SchemeShpt   Scheme = "shpt" // SharePoint / generic file-share REST endpoint
)

// Registry resolves a scheme to its Adapter.
type Registry struct {
	adapters map[Scheme]Adapter
}

// NewRegistry creates an empty adapter Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Scheme]Adapter)}
}

// Register binds an Adapter to a Scheme.
func (r *Registry) Register(s Scheme, a Adapter) {
	r.adapters[s] = a
}

// For returns the Adapter registered for s, or a domain.Error with
// CodeSourceNotFound if none is registered.
func (r *Registry) For(s Scheme) (Adapter, error) {
	a, ok := r.adapters[s]
	if !ok {
		return nil, domain.New(domain.CodeSourceNotFound, "no adapter registered for scheme %q", s)
	}
	return a, nil
}
