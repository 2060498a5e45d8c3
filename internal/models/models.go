package models

// Page is the text of one source page, numbered from 1.
type Page struct {
	Number               int    `json:"page_number"`
	Text                 string `json:"raw_text"`
	DetectedSectionTitle string `json:"detected_section_title"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content      string `json:"text"`
	ChunkIndex   int    `json:"chunk_index"`
	SectionTitle string `json:"section_title"`
	PageNumber   int    `json:"page_num"`
}

// Source is a retrieved chunk returned alongside an answer.
type Source struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

type PromptResponse struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

// Metadata keys stored with every vector entry. Values are strings.
const (
	MetaFilename     = "filename"
	MetaSectionTitle = "section_title"
	MetaChunkIndex   = "chunk_index"
	MetaPageNum      = "page_num"
)

// VectorEntry is what the vector store keeps per chunk. ID matches the relational chunk id.
type VectorEntry struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// VectorHit is one nearest-neighbour result.
type VectorHit struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}
