package ingestion_engine

// IngestConfig tunes the streaming pipeline.
//
// TargetTokens:   approximate tokens per chunk (e.g., 250).
// OverlapTokens:  token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:      how many chunks to embed/write in one batch (e.g., 500).
// Workers:        documents ingested concurrently by IngestDir.
type IngestConfig struct {
	TargetTokens  int
	OverlapTokens int
	BatchSize     int
	Workers       int
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.TargetTokens <= 0 {
		c.TargetTokens = 250
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.TargetTokens {
		c.OverlapTokens = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:      stable, zero-based position of the chunk inside the document.
// Text:     chunk content (built from one or more fragments).
// TokenCnt: approximate token count (used for batching and overlap math).
type chunk struct {
	Pos      int
	Text     string
	TokenCnt int
}
