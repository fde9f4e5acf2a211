package chat

import (
	"sync"

	"docqa/internal/models"
)

// Transcript is the append-only conversation log.
type Transcript struct {
	mu   sync.RWMutex
	msgs []models.Message
}

func NewTranscript(restored ...models.Message) *Transcript {
	return &Transcript{msgs: append([]models.Message(nil), restored...)}
}

func (t *Transcript) Append(m models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, m)
}

func (t *Transcript) Messages() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.Message(nil), t.msgs...)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// Recent returns up to n of the latest question and answer messages, oldest
// first. Info and error notices are skipped.
func (t *Transcript) Recent(n int) []models.Message {
	if n <= 0 {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []models.Message
	for i := len(t.msgs) - 1; i >= 0 && len(out) < n; i-- {
		switch t.msgs[i].Kind {
		case models.KindInfo, models.KindError:
			continue
		}
		out = append(out, t.msgs[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
