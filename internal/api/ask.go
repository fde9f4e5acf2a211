package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"docqa/internal/chat"
	"docqa/internal/models"
)

var errQuestionRequired = errors.New("question is required")

// sseObserver forwards a turn to the client as server-sent events. Headers
// go out with the first event so a turn rejected up front can still answer
// with a plain JSON error.
type sseObserver struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEObserver(w http.ResponseWriter) *sseObserver {
	f, _ := w.(http.Flusher)
	return &sseObserver{w: w, flusher: f}
}

func (o *sseObserver) send(event string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		h := o.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		o.w.WriteHeader(http.StatusOK)
		o.started = true
	}
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{}`)
	}
	_, _ = fmt.Fprintf(o.w, "event: %s\ndata: %s\n\n", event, b)
	if o.flusher != nil {
		o.flusher.Flush()
	}
}

func (o *sseObserver) State(s chat.TurnState) {
	o.send("state", map[string]string{"state": string(s)})
}

func (o *sseObserver) Token(tok string) {
	o.send("token", map[string]string{"text": tok})
}

func (o *sseObserver) Message(m models.Message) { o.send("message", m) }

func (o *sseObserver) JumpToSource(c models.Chunk) { o.send("jump", c) }

func (o *sseObserver) isStarted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

type askRequest struct {
	Question  string `json:"question"`
	Selection string `json:"selection,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, false)
}

func (s *Server) handleAskSelection(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, true)
}

// ask streams a turn unless the client passes stream=false, in which case
// the final TurnResult comes back as one JSON body.
func (s *Server) ask(w http.ResponseWriter, r *http.Request, selection bool) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if selection && strings.TrimSpace(req.Selection) == "" {
		writeErr(w, http.StatusBadRequest, errors.New("selection is required"))
		return
	}
	if !selection && req.Question == "" {
		writeErr(w, http.StatusBadRequest, errQuestionRequired)
		return
	}
	if s.orch.Busy() {
		writeErr(w, http.StatusConflict, chat.ErrBusy)
		return
	}

	stream := r.URL.Query().Get("stream") != "false"
	var obs chat.Observer = chat.NopObserver{}
	var sse *sseObserver
	if stream {
		sse = newSSEObserver(w)
		obs = sse
	}

	var (
		res chat.TurnResult
		err error
	)
	if selection {
		res, err = s.orch.AskAboutSelection(r.Context(), req.Selection, req.Question, obs)
	} else {
		res, err = s.orch.Ask(r.Context(), req.Question, obs)
	}
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, chat.ErrBusy):
			code = http.StatusConflict
		case errors.Is(err, chat.ErrEmptyQuestion):
			code = http.StatusBadRequest
		}
		if sse != nil && sse.isStarted() {
			apiErr := toAPIError(code, err)
			sse.send("error", map[string]string{"code": apiErr.Code, "message": apiErr.Message})
			return
		}
		writeErr(w, code, err)
		return
	}
	if sse != nil {
		sse.send("done", res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
