package models

import "time"

// TextItem is one positioned fragment of extracted page text. Coordinates are
// page-viewport units with a top-left origin.
type TextItem struct {
	Text   string  `json:"text"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type PageText struct {
	PageNumber int        `json:"page_number"`
	Text       string     `json:"text"`
	Items      []TextItem `json:"items,omitempty"`
}

// Rect is a highlight box on a rendered page.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	DocumentID   string `json:"document_id,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	Text         string `json:"text"`
	PageNumber   int    `json:"page_number"`
	ChunkIndex   int    `json:"chunk_index"`
	Rects        []Rect `json:"rects,omitempty"`
}

// Clone returns a copy that shares no rect storage with c.
func (c Chunk) Clone() Chunk {
	if c.Rects != nil {
		c.Rects = append([]Rect(nil), c.Rects...)
	}
	return c
}

type ManagedDocument struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	File           []byte     `json:"-"`
	Chunks         []Chunk    `json:"chunks"`
	ExtractedPages []PageText `json:"extracted_pages"`
	Summary        string     `json:"summary,omitempty"`
	CurrentPage    int        `json:"current_page"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind separates real answers from the notices the orchestrator
// writes into the transcript.
type MessageKind string

const (
	KindQuestion MessageKind = "question"
	KindAnswer   MessageKind = "answer"
	KindInfo     MessageKind = "info"
	KindError    MessageKind = "error"
	KindSummary  MessageKind = "summary"
)

type GenerationStats struct {
	EvalCount       int           `json:"eval_count,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	TotalDuration   time.Duration `json:"total_duration,omitempty"`
	LoadDuration    time.Duration `json:"load_duration,omitempty"`
	Provider        string        `json:"provider,omitempty"`
	Model           string        `json:"model,omitempty"`
}

type Message struct {
	ID           string           `json:"id"`
	Role         Role             `json:"role"`
	Kind         MessageKind      `json:"kind"`
	Content      string           `json:"content"`
	PageNumber   int              `json:"page_number,omitempty"`
	SourceChunks []Chunk          `json:"source_chunks,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	Stats        *GenerationStats `json:"stats,omitempty"`
}

// Selection names the provider and model a turn should use.
type Selection struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// SessionState is the persisted blob restored on start-up.
type SessionState struct {
	ActiveDocumentID string    `json:"active_document_id,omitempty"`
	Selected         Selection `json:"selected_model"`
}

// LLMCall is one audited backend call.
type LLMCall struct {
	CallID     string `json:"call_id"`
	Operation  string `json:"operation"`
	DocumentID string `json:"document_id,omitempty"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Status     string `json:"status"`
	ErrorType  string `json:"error_type,omitempty"`
}
