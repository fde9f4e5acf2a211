package activities

// Activity payloads carry artifact paths and counts only. Pages and chunks
// live on disk under util.ArtifactDir.

type ComputeDocumentIDInput struct {
	Path string `json:"path"`
}

type ComputeDocumentIDOutput struct {
	DocumentID string `json:"document_id"`
}

type ExtractPagesInput struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
}

type ExtractPagesOutput struct {
	PagesPath string `json:"pages_path"`
	Pages     int    `json:"pages"`
	Scanned   bool   `json:"scanned"`
}

type OCRPagesInput struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
	Name       string `json:"name"`
}

type OCRPagesOutput struct {
	PagesPath string `json:"pages_path"`
	Pages     int    `json:"pages"`
}

type SegmentPagesInput struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	PagesPath  string `json:"pages_path"`
}

type SegmentPagesOutput struct {
	ChunksPath string `json:"chunks_path"`
	Chunks     int    `json:"chunks"`
}

// SaveDocumentInput carries no document content; the file, pages and chunks
// are read back from their paths. An empty ChunksPath stores no chunks.
type SaveDocumentInput struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Status     string `json:"status"`
	PagesPath  string `json:"pages_path"`
	ChunksPath string `json:"chunks_path,omitempty"`
}

type UpdateDocumentStatusInput struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}
