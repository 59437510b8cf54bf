package vectorstore

import "github.com/beaconrag/beacon/engine/domain"

// Router picks the concrete Store backing a QueryEngine's declared
// VectorStoreKind, the selection the package doc describes as happening
// "per QueryEngine at build time".
type Router struct {
	stores map[domain.VectorStoreKind]Store
}

// NewRouter creates a Router dispatching ann to qdrant and relational to
// pgvector. Either may be nil if that backend isn't configured; selecting a
// nil backend is a caller error surfaced at build or query time.
func NewRouter(qdrant, pgvector Store) *Router {
	return &Router{stores: map[domain.VectorStoreKind]Store{
		domain.VectorStoreQdrant:   qdrant,
		domain.VectorStorePgVector: pgvector,
	}}
}

// For returns the Store backing kind, or nil if that backend isn't configured.
func (r *Router) For(kind domain.VectorStoreKind) Store {
	return r.stores[kind]
}
