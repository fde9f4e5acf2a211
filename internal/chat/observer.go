package chat

import "docqa/internal/models"

type TurnState string

const (
	StateIdle          TurnState = "idle"
	StateProviderCheck TurnState = "provider_check"
	StateQuerying      TurnState = "querying"
	StateFallback      TurnState = "fallback"
	StateStreaming     TurnState = "streaming"
	StatePinpointing   TurnState = "pinpointing"
	StateCommitted     TurnState = "committed"
	StateErrored       TurnState = "errored"
)

// Observer is the presentation side of a turn. Calls arrive on the turn's
// goroutine in order.
type Observer interface {
	State(s TurnState)
	Token(tok string)
	Message(m models.Message)
	// JumpToSource fires once per committed answer with its top citation.
	JumpToSource(c models.Chunk)
}

type NopObserver struct{}

func (NopObserver) State(TurnState)           {}
func (NopObserver) Token(string)              {}
func (NopObserver) Message(models.Message)    {}
func (NopObserver) JumpToSource(models.Chunk) {}
