package domain

import "time"

// RecordMetadata is the closed set of keys stored alongside a vector record.
// It crosses the index boundary as a loose field map but stays typed inside
// the core.
type RecordMetadata struct {
	OwnerID          string
	ContentType      ContentType
	CreatedAt        time.Time
	Title            string
	Annotation       string
	Tags             []string
	OriginalFilename string
	Source           string
}

// VectorRecord is the unit stored in the vector index, keyed by the captured
// item's id. Created or overwritten on a successful pipeline run.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  RecordMetadata
	Text      string
}

// VectorHit is a single nearest-neighbor match. Similarity is already
// converted from cosine distance.
type VectorHit struct {
	ID         string
	Similarity float64
	Metadata   RecordMetadata
	Text       string
}

// IndexStats reports vector index size and reachability.
type IndexStats struct {
	Count     int
	Connected bool
}
