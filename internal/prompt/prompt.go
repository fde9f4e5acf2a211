package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"docqa/internal/models"
)

const AnswerPreamble = `You are a document assistant. Use the document context below to answer the question.
Instructions:
- Answer ONLY from the information in the document context.
- When several documents are provided, cross-reference them if it helps the answer.
- Always cite the document name and page number you used, e.g. (Document: report.pdf, Page: 4).
- If the context does not contain enough information, say so plainly instead of guessing.`

const blockSeparator = "\n\n---\n\n"

// BuildPrompt renders the answer prompt. history should be the same window the
// ranker used for query expansion.
func BuildPrompt(question string, chunks []models.Chunk, history []models.Message) string {
	var b strings.Builder
	b.WriteString(AnswerPreamble)
	b.WriteString("\n\nDOCUMENT CONTEXT:\n")
	b.WriteString(ContextBlocks(chunks))
	if h := Conversation(history); h != "" {
		b.WriteString("\n\nPrevious Conversation:\n")
		b.WriteString(h)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\nAnswer:")
	return b.String()
}

func ContextBlocks(chunks []models.Chunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, Block(c))
	}
	return strings.Join(blocks, blockSeparator)
}

// Block labels one chunk with its document and page.
func Block(c models.Chunk) string {
	name := strings.TrimSpace(c.DocumentName)
	if name == "" {
		name = "Document"
	}
	return fmt.Sprintf("[Document: %s, Page: %d]\n%s", name, c.PageNumber, strings.TrimSpace(c.Text))
}

// Conversation renders user turns as Question lines and assistant turns as
// Answer lines, in transcript order.
func Conversation(history []models.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case models.RoleUser:
			lines = append(lines, "Question: "+content)
		case models.RoleAssistant:
			lines = append(lines, "Answer: "+content)
		}
	}
	return strings.Join(lines, "\n")
}

const PinpointTemplate = `You locate evidence. Below is an answer and the source passages it was based on.
Return the single sentence or phrase, copied VERBATIM from the passages, that most directly supports the answer.

Output STRICT JSON with this schema:
{"quote": "exact text from a passage"}

If no passage supports the answer, return {"quote": ""}.`

func BuildPinpointPrompt(answer string, chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString(PinpointTemplate)
	b.WriteString("\n\nANSWER:\n")
	b.WriteString(strings.TrimSpace(answer))
	b.WriteString("\n\nPASSAGES:\n")
	b.WriteString(ContextBlocks(chunks))
	return b.String()
}

// ParsePinpoint extracts the quote from a pinpoint reply. ok is false when the
// reply is not the expected JSON or the quote is empty.
func ParsePinpoint(raw string) (string, bool) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}
	if i, j := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); i >= 0 && j > i {
		raw = raw[i : j+1]
	}
	var payload struct {
		Quote string `json:"quote"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", false
	}
	q := strings.Trim(strings.TrimSpace(payload.Quote), `"`)
	return q, q != ""
}

const SummaryTemplate = `Summarize the following document in a few short paragraphs.
Cover its purpose, the key points and any dates, amounts or obligations it states.
Use only the text provided.`

// BuildSummaryPrompt caps the excerpt at maxChars runes; maxChars <= 0 means no cap.
func BuildSummaryPrompt(documentName string, pages []models.PageText, maxChars int) string {
	var body strings.Builder
	for _, p := range pages {
		t := strings.TrimSpace(p.Text)
		if t == "" {
			continue
		}
		fmt.Fprintf(&body, "[Page %d]\n%s\n\n", p.PageNumber, t)
	}
	text := strings.TrimSpace(body.String())
	if maxChars > 0 {
		if r := []rune(text); len(r) > maxChars {
			text = string(r[:maxChars])
		}
	}
	name := strings.TrimSpace(documentName)
	if name == "" {
		name = "Document"
	}
	return SummaryTemplate + "\n\nDocument: " + name + "\n\n" + text
}

// BuildSelectionQuestion frames a question about text the user highlighted.
func BuildSelectionQuestion(selection, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		question = "Explain this passage."
	}
	return fmt.Sprintf("Regarding this passage: %q\n%s", strings.TrimSpace(selection), question)
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
