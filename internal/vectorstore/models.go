package vectorstore

// Document is a chunk of text to be embedded and stored.
type Document struct {
	// ID is the stable identifier, e.g. "rules/cpf.txt::chunk0".
	ID string

	Content string

	// Metadata is stored alongside the vector and returned with hits.
	Metadata map[string]string
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID      string
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	Metadata map[string]string
}
