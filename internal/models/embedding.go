package models

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string            `json:"content"`
	PageNumber int               `json:"page_number"`
	ChunkID    int               `json:"chunk_id"`
	Metadata   map[string]string `json:"metadata"`
}

// Page is the raw text of one page (or sheet, slide) of an extracted document.
type Page struct {
	Number int
	Text   string
}

// metadata keys attached to every chunk
const (
	MetaSource = "source"
	MetaCrop   = "crop"
	MetaFile   = "file"
	MetaPage   = "page"
)

// ChunkMetadata copies the file-level metadata and stamps the page number.
func ChunkMetadata(base map[string]string, page string) map[string]string {
	meta := make(map[string]string, len(base)+1)
	for k, v := range base {
		meta[k] = v
	}
	meta[MetaPage] = page
	return meta
}

// SearchResult is one similarity hit from a vector store, nearest first.
type SearchResult struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float32           `json:"similarity"`
}
