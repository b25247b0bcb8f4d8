package search

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is one write-side row in idx.search_documents: a parsed entity
// with its embedding, ready for hybrid (tsvector + pgvector) retrieval
// downstream. The tsv column is generated by the database and never written
// here.
type Document struct {
	// DocID is the primary key; see DocID().
	DocID string `json:"docId"`

	RepoID    string `json:"repoId"`
	Path      string `json:"path"`
	CommitSHA string `json:"commit"`

	Lang      string `json:"lang"`
	Kind      string `json:"kind"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`

	// Tool identifies the extractor that produced the entity.
	Tool string `json:"tool"`

	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`

	// Vector is the entity embedding; empty when the provider is disabled
	// (the document then serves lexical search only).
	Vector []float32 `json:"-"`

	IndexedAt time.Time `json:"indexedAt"`
}

// DocID derives the document primary key: the hex SHA-256 of the content
// followed by the entity identity. Re-indexing unchanged content lands on
// the same key, which is what makes document writes idempotent.
func DocID(content, entityID string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:]) + entityID
}
