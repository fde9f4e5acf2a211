package workflows

type DocumentIngestInput struct {
	DocumentID string `json:"document_id,omitempty"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	RunOCR     bool   `json:"run_ocr"`
}

// IngestStatus is what GetIngestStatus returns while the workflow runs.
type IngestStatus struct {
	DocumentID  string            `json:"document_id"`
	Name        string            `json:"name"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	Scanned     bool              `json:"scanned"`
	OCRUsed     bool              `json:"ocr_used"`
	Pages       int               `json:"pages"`
	Chunks      int               `json:"chunks"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Steps       map[string]string `json:"steps"`
}
