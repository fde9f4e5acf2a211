// Package chat runs question turns against the document library: provider
// check with cloud fallback, ranking, streamed generation, pinpointing and
// commit to the transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"docqa/internal/models"
	"docqa/internal/prompt"
	"docqa/internal/providers"
	"docqa/internal/quota"
	"docqa/internal/rank"
	"docqa/internal/util"

	"github.com/google/uuid"
)

var (
	ErrBusy          = errors.New("a question is already being answered")
	ErrEmptyQuestion = errors.New("question is empty")
)

const (
	DefaultTopK          = 15
	DefaultHistoryWindow = 4
	summaryMaxChars      = 12000
)

type ProviderLookup interface {
	FindLLMProviderByName(name string) (providers.LLMProvider, providers.ProviderRef, bool)
}

// Documents is the read side of the library plus the one write a summary needs.
type Documents interface {
	Chunks() []models.Chunk
	Get(id string) (models.ManagedDocument, bool)
	SetSummary(id, summary string) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, m models.Message) error
}

type Auditor interface {
	RecordLLMCall(ctx context.Context, call models.LLMCall) error
}

type Options struct {
	Providers  ProviderLookup
	Documents  Documents
	Quota      quota.Counter
	Transcript *Transcript

	// LocalProvider is probed before each turn; CloudProvider is metered.
	LocalProvider string
	CloudProvider string
	FallbackModel string
	CloudLimit    int
	Selection     models.Selection

	TopK          int
	HistoryWindow int

	Store   MessageStore
	Auditor Auditor
	Logger  *slog.Logger
}

type TurnResult struct {
	State    TurnState      `json:"state"`
	Message  models.Message `json:"message"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Fallback bool           `json:"fallback,omitempty"`
	// Err carries the cause of an errored turn; the transcript already holds
	// the user-facing message.
	Err error `json:"-"`
}

type Orchestrator struct {
	providers  ProviderLookup
	docs       Documents
	quota      quota.Counter
	transcript *Transcript
	store      MessageStore
	auditor    Auditor
	log        *slog.Logger

	local, cloud  string
	fallbackModel string
	cloudLimit    int
	topK          int
	history       int

	busy atomic.Bool
	mu   sync.RWMutex
	sel  models.Selection
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Providers == nil {
		return nil, fmt.Errorf("orchestrator: providers required")
	}
	if opts.Documents == nil {
		return nil, fmt.Errorf("orchestrator: documents required")
	}
	o := &Orchestrator{
		providers:     opts.Providers,
		docs:          opts.Documents,
		quota:         opts.Quota,
		transcript:    opts.Transcript,
		store:         opts.Store,
		auditor:       opts.Auditor,
		log:           opts.Logger,
		local:         strings.ToLower(firstNonEmpty(opts.LocalProvider, "ollama")),
		cloud:         strings.ToLower(firstNonEmpty(opts.CloudProvider, "groq")),
		fallbackModel: firstNonEmpty(opts.FallbackModel, "llama-3.1-8b-instant"),
		cloudLimit:    opts.CloudLimit,
		topK:          opts.TopK,
		history:       opts.HistoryWindow,
		sel:           opts.Selection,
	}
	if o.quota == nil {
		o.quota = quota.NewMemoryCounter(0)
	}
	if o.transcript == nil {
		o.transcript = NewTranscript()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.cloudLimit <= 0 {
		o.cloudLimit = quota.CloudLimit
	}
	if o.topK <= 0 {
		o.topK = DefaultTopK
	}
	if o.history <= 0 {
		o.history = DefaultHistoryWindow
	}
	if o.sel.Provider == "" {
		o.sel.Provider = o.local
	}
	return o, nil
}

func (o *Orchestrator) Selection() models.Selection {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sel
}

func (o *Orchestrator) SetSelection(sel models.Selection) {
	sel.Provider = strings.ToLower(strings.TrimSpace(sel.Provider))
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sel = sel
}

func (o *Orchestrator) Transcript() *Transcript { return o.transcript }

func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// QuotaRemaining reports unused cloud completions.
func (o *Orchestrator) QuotaRemaining(ctx context.Context) (used, remaining int, err error) {
	used, err = o.quota.Used(ctx)
	if err != nil {
		return 0, 0, err
	}
	remaining = o.cloudLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return used, remaining, nil
}

// route is the provider a single turn runs on.
type route struct {
	provider providers.LLMProvider
	name     string
	model    string
	cloud    bool
	fallback bool
}

type turn struct {
	o   *Orchestrator
	obs Observer
	rt  route
}

func (t *turn) set(s TurnState) { t.obs.State(s) }

func (t *turn) fail(ctx context.Context, cause error, content string) TurnResult {
	msg := t.o.newMessage(models.RoleAssistant, models.KindError, content)
	t.o.commit(ctx, msg, t.obs)
	t.set(StateErrored)
	t.o.log.Warn("turn failed", "provider", t.rt.name, "model", t.rt.model, "error", cause)
	return TurnResult{State: StateErrored, Message: msg, Provider: t.rt.name, Model: t.rt.model, Fallback: t.rt.fallback, Err: cause}
}

func (o *Orchestrator) begin(obs Observer) (*turn, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &turn{o: o, obs: obs}, nil
}

func (o *Orchestrator) end(t *turn) {
	t.set(StateIdle)
	o.busy.Store(false)
}

// Ask answers one question. Calling it while a turn is running returns
// ErrBusy without touching the transcript. Failures after the question is
// recorded are committed as error messages and reported in TurnResult.Err.
func (o *Orchestrator) Ask(ctx context.Context, question string, obs Observer) (TurnResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return TurnResult{}, ErrEmptyQuestion
	}
	t, err := o.begin(obs)
	if err != nil {
		return TurnResult{}, err
	}
	defer o.end(t)

	history := o.transcript.Recent(o.history)
	o.commit(ctx, o.newMessage(models.RoleUser, models.KindQuestion, question), t.obs)

	if res, ok := o.checkProvider(ctx, t); !ok {
		return res, nil
	}

	t.set(StateQuerying)
	chunks := rank.FindRelevantChunks(question, o.docs.Chunks(), o.topK, history)
	if len(chunks) == 0 {
		return t.fail(ctx, util.ErrNoRelevantContent, "I couldn't find relevant content in the uploaded documents for that question. Try rephrasing or asking about something the documents cover."), nil
	}
	o.log.Info("answering", "provider", t.rt.name, "model", t.rt.model, "chunks", len(chunks), "fallback", t.rt.fallback)

	answer, stats, err := o.stream(ctx, t, "answer", "", prompt.BuildPrompt(question, chunks, history))
	if err != nil {
		return t.fail(ctx, err, providers.Describe(err)), nil
	}

	t.set(StatePinpointing)
	cited, top := o.pinpoint(ctx, t.rt, answer, chunks)

	msg := o.newMessage(models.RoleAssistant, models.KindAnswer, answer)
	msg.SourceChunks = cited
	msg.PageNumber = cited[top].PageNumber
	msg.Stats = stats
	o.commit(ctx, msg, t.obs)
	t.obs.JumpToSource(cited[top])
	t.set(StateCommitted)
	return TurnResult{State: StateCommitted, Message: msg, Provider: t.rt.name, Model: t.rt.model, Fallback: t.rt.fallback}, nil
}

// AskAboutSelection asks about a passage the user highlighted in the viewer.
func (o *Orchestrator) AskAboutSelection(ctx context.Context, selection, question string, obs Observer) (TurnResult, error) {
	if strings.TrimSpace(selection) == "" {
		return TurnResult{}, ErrEmptyQuestion
	}
	return o.Ask(ctx, prompt.BuildSelectionQuestion(selection, question), obs)
}

// Summarize generates and stores a summary for one document. It follows the
// same provider and quota rules as Ask.
func (o *Orchestrator) Summarize(ctx context.Context, documentID string, obs Observer) (TurnResult, error) {
	doc, ok := o.docs.Get(documentID)
	if !ok {
		return TurnResult{}, fmt.Errorf("summarize %s: document not found", documentID)
	}
	t, err := o.begin(obs)
	if err != nil {
		return TurnResult{}, err
	}
	defer o.end(t)

	if res, ok := o.checkProvider(ctx, t); !ok {
		return res, nil
	}
	t.set(StateQuerying)
	summary, stats, err := o.stream(ctx, t, "summary", doc.ID, prompt.BuildSummaryPrompt(doc.Name, doc.ExtractedPages, summaryMaxChars))
	if err != nil {
		return t.fail(ctx, err, providers.Describe(err)), nil
	}
	if err := o.docs.SetSummary(doc.ID, summary); err != nil {
		o.log.Warn("store summary failed", "document_id", doc.ID, "error", err)
	}
	msg := o.newMessage(models.RoleAssistant, models.KindSummary, summary)
	msg.Stats = stats
	msg.PageNumber = 1
	o.commit(ctx, msg, t.obs)
	t.set(StateCommitted)
	return TurnResult{State: StateCommitted, Message: msg, Provider: t.rt.name, Model: t.rt.model, Fallback: t.rt.fallback}, nil
}

// checkProvider resolves the turn's route. ok is false when the turn already
// ended with an error message.
func (o *Orchestrator) checkProvider(ctx context.Context, t *turn) (TurnResult, bool) {
	t.set(StateProviderCheck)
	sel := o.Selection()
	name := strings.ToLower(firstNonEmpty(sel.Provider, o.local))
	p, _, found := o.providers.FindLLMProviderByName(name)
	if !found {
		t.rt = route{name: name, model: sel.Model}
		return t.fail(ctx, fmt.Errorf("%s: %w", name, util.ErrProviderMissing), fmt.Sprintf("The %s provider is not configured.", name)), false
	}
	t.rt = route{provider: p, name: name, model: sel.Model, cloud: name == o.cloud}

	if name == o.local && !o.reachable(ctx, p) {
		exhausted, err := o.exhausted(ctx)
		if err != nil {
			return t.fail(ctx, err, "Could not read the cloud usage counter."), false
		}
		if exhausted {
			return t.fail(ctx, util.ErrQuotaExhausted, fmt.Sprintf("%s is not reachable and the free cloud quota (%d requests) is used up. Start your local model server and try again.", displayName(o.local), o.cloudLimit)), false
		}
		cp, _, ok := o.providers.FindLLMProviderByName(o.cloud)
		if !ok {
			return t.fail(ctx, fmt.Errorf("%s: %w", o.cloud, util.ErrProviderMissing), fmt.Sprintf("%s is not reachable and no cloud fallback is configured.", displayName(o.local))), false
		}
		t.set(StateFallback)
		t.rt = route{provider: cp, name: o.cloud, model: o.fallbackModel, cloud: true, fallback: true}
		_, remaining, _ := o.QuotaRemaining(ctx)
		info := o.newMessage(models.RoleAssistant, models.KindInfo, fmt.Sprintf("%s is not reachable, so this question is answered by %s (%s). %d of %d free cloud requests remaining.", displayName(o.local), displayName(o.cloud), o.fallbackModel, remaining, o.cloudLimit))
		o.commit(ctx, info, t.obs)
		o.log.Info("local provider unreachable, falling back", "provider", o.cloud, "model", o.fallbackModel, "remaining", remaining)
	}

	if t.rt.cloud {
		exhausted, err := o.exhausted(ctx)
		if err != nil {
			return t.fail(ctx, err, "Could not read the cloud usage counter."), false
		}
		if exhausted {
			return t.fail(ctx, util.ErrQuotaExhausted, fmt.Sprintf("The free cloud quota (%d requests) is used up. Switch to a local model to keep asking questions.", o.cloudLimit)), false
		}
	}
	return TurnResult{}, true
}

// stream runs the main generation for a turn, forwarding tokens to the
// observer, and bumps the cloud counter once on success.
func (o *Orchestrator) stream(ctx context.Context, t *turn, op, documentID, text string) (string, *models.GenerationStats, error) {
	t.set(StateStreaming)
	resp, info, err := t.rt.provider.Generate(ctx, providers.GenerateRequest{
		Operation: op,
		Prompt:    text,
		Model:     t.rt.model,
		OnToken:   t.obs.Token,
	})
	o.audit(ctx, op, documentID, t.rt, info, err)
	if err != nil {
		return "", nil, fmt.Errorf("%s via %s: %w", op, t.rt.name, err)
	}
	out := strings.TrimSpace(resp.Text)
	if out == "" {
		return "", nil, fmt.Errorf("%s via %s: empty response", op, t.rt.name)
	}
	if t.rt.cloud {
		if _, err := o.quota.Increment(ctx); err != nil {
			o.log.Warn("quota increment failed", "error", err)
		}
	}
	stats := resp.Stats
	if stats == nil {
		stats = &models.GenerationStats{}
	}
	stats.Provider = firstNonEmpty(info.Name, t.rt.name)
	stats.Model = firstNonEmpty(info.Model, t.rt.model)
	return out, stats, nil
}

// pinpoint asks the same backend for the supporting quote and narrows that
// one citation's rects. It returns copies of chunks and the index of the
// citation to jump to. Any failure keeps the full-chunk citations.
func (o *Orchestrator) pinpoint(ctx context.Context, rt route, answer string, chunks []models.Chunk) ([]models.Chunk, int) {
	cited := make([]models.Chunk, len(chunks))
	for i := range chunks {
		cited[i] = chunks[i].Clone()
	}
	resp, info, err := rt.provider.Generate(ctx, providers.GenerateRequest{
		Operation: "pinpoint",
		Prompt:    prompt.BuildPinpointPrompt(answer, chunks),
		Model:     rt.model,
	})
	o.audit(ctx, "pinpoint", "", rt, info, err)
	if err != nil {
		o.log.Warn("pinpoint failed", "provider", rt.name, "error", err)
		return cited, 0
	}
	quote, ok := prompt.ParsePinpoint(resp.Text)
	if !ok {
		o.log.Warn("pinpoint reply not usable", "provider", rt.name)
		return cited, 0
	}
	for i := range cited {
		if rects, found := NarrowRects(cited[i], quote); found {
			cited[i].Rects = rects
			return cited, i
		}
	}
	return cited, 0
}

func (o *Orchestrator) reachable(ctx context.Context, p providers.LLMProvider) bool {
	pr, ok := p.(providers.Prober)
	if !ok {
		return true
	}
	return pr.Ping(ctx)
}

func (o *Orchestrator) exhausted(ctx context.Context) (bool, error) {
	done, err := quota.Exhausted(ctx, o.quota, o.cloudLimit)
	if err != nil {
		return false, fmt.Errorf("read cloud usage: %w", err)
	}
	return done, nil
}

func (o *Orchestrator) newMessage(role models.Role, kind models.MessageKind, content string) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// commit appends to the transcript, notifies the observer and persists.
func (o *Orchestrator) commit(ctx context.Context, m models.Message, obs Observer) {
	o.transcript.Append(m)
	obs.Message(m)
	if o.store == nil {
		return
	}
	if err := o.store.SaveMessage(ctx, m); err != nil {
		o.log.Warn("persist message failed", "message_id", m.ID, "error", err)
	}
}

func (o *Orchestrator) audit(ctx context.Context, op, documentID string, rt route, info providers.ProviderInfo, err error) {
	if o.auditor == nil {
		return
	}
	call := models.LLMCall{
		CallID:     uuid.NewString(),
		Operation:  op,
		DocumentID: documentID,
		Provider:   firstNonEmpty(info.Name, rt.name),
		Model:      firstNonEmpty(info.Model, rt.model),
		Status:     "ok",
	}
	if err != nil {
		call.Status = "error"
		call.ErrorType = string(providers.ClassifyError(err))
	}
	if aerr := o.auditor.RecordLLMCall(ctx, call); aerr != nil {
		o.log.Warn("audit llm call failed", "operation", op, "error", aerr)
	}
}

func displayName(provider string) string {
	switch provider {
	case "ollama":
		return "Ollama"
	case "groq":
		return "Groq"
	case "openai":
		return "OpenAI"
	}
	return provider
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
