package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docqa/internal/chat"
	"docqa/internal/config"
	"docqa/internal/library"
	"docqa/internal/models"
	"docqa/internal/providers"
	"docqa/internal/quota"
	"docqa/internal/segment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOCR struct {
	configured bool
	pages      []models.PageText
	calls      int
}

func (f *fakeOCR) Configured() bool { return f.configured }

func (f *fakeOCR) Recognize(context.Context, string, []byte) ([]models.PageText, error) {
	f.calls++
	return f.pages, nil
}

type memSession struct {
	saved []models.SessionState
}

func (m *memSession) SaveSession(_ context.Context, st models.SessionState) error {
	m.saved = append(m.saved, st)
	return nil
}

func (m *memSession) LoadSession(context.Context) (models.SessionState, bool, error) {
	if len(m.saved) == 0 {
		return models.SessionState{}, false, nil
	}
	return m.saved[len(m.saved)-1], true, nil
}

type testServer struct {
	srv     *Server
	lib     *library.Library
	ocr     *fakeOCR
	session *memSession
	quota   *quota.MemoryCounter
	h       http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	seg, err := segment.New(100, 20)
	require.NoError(t, err)
	lib := library.New(seg)
	counter := quota.NewMemoryCounter(2)
	pm := providers.NewStaticManager(providers.NamedLLMProvider{
		Ref:      providers.ProviderRef{Raw: "mock", Name: "mock"},
		Provider: providers.NewMockProvider(),
	})
	orch, err := chat.New(chat.Options{
		Providers: pm,
		Documents: lib,
		Quota:     counter,
		Selection: models.Selection{Provider: "mock"},
	})
	require.NoError(t, err)
	ocr := &fakeOCR{}
	sess := &memSession{}
	srv, err := New(Deps{
		Config:       config.Defaults(),
		Library:      lib,
		Orchestrator: orch,
		OCR:          ocr,
		Session:      sess,
	})
	require.NoError(t, err)
	return &testServer{srv: srv, lib: lib, ocr: ocr, session: sess, quota: counter, h: srv.Routes()}
}

func (ts *testServer) addDocument(t *testing.T, id, name string, pages ...string) models.ManagedDocument {
	t.Helper()
	pts := make([]models.PageText, 0, len(pages))
	for i, p := range pages {
		pts = append(pts, models.PageText{PageNumber: i + 1, Text: p})
	}
	doc, err := ts.lib.Build(id, name, []byte("%PDF-1.4"), pts)
	require.NoError(t, err)
	ts.lib.Add(doc)
	return doc
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(body string) []sseEvent {
	var out []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.name != "" {
			out = append(out, ev)
		}
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestAskStreamsTurnAsEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "policy.pdf",
		"The office is open on weekdays.",
		"The submission deadline is March 1st for all applicants.")

	rec := ts.do(t, http.MethodPost, "/ask", map[string]string{"question": "When is the submission deadline?"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(rec.Body.String())
	require.NotEmpty(t, events)
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.name)
	}
	assert.Contains(t, names, "state")
	assert.Contains(t, names, "token")
	assert.Contains(t, names, "message")
	assert.Contains(t, names, "jump")
	assert.Equal(t, "done", names[len(names)-1])

	var res chat.TurnResult
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &res))
	assert.Equal(t, chat.StateCommitted, res.State)
	assert.Equal(t, 2, res.Message.PageNumber)
	assert.Equal(t, models.KindAnswer, res.Message.Kind)
}

func TestAskWithoutStreamReturnsJSON(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "policy.pdf", "The submission deadline is March 1st for all applicants.")

	rec := ts.do(t, http.MethodPost, "/ask?stream=false", map[string]string{"question": "submission deadline?"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res chat.TurnResult
	decode(t, rec, &res)
	require.Equal(t, chat.StateCommitted, res.State)
	require.Len(t, res.Message.SourceChunks, 1)

	msgs := ts.do(t, http.MethodGet, "/messages", nil)
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, msgs, &body)
	require.Len(t, body.Messages, 2)
	require.Equal(t, models.RoleUser, body.Messages[0].Role)
}

func TestAskNoRelevantContentCommitsError(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "policy.pdf", "The office is open on weekdays.")

	rec := ts.do(t, http.MethodPost, "/ask?stream=false", map[string]string{"question": "quantum entanglement"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res chat.TurnResult
	decode(t, rec, &res)
	require.Equal(t, chat.StateErrored, res.State)
	require.Equal(t, models.KindError, res.Message.Kind)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/ask", map[string]string{"question": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "DQ-API-4001", errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, "/ask", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAskAboutSelection(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "policy.pdf", "The submission deadline is March 1st for all applicants.")

	rec := ts.do(t, http.MethodPost, "/ask/selection?stream=false", map[string]string{"selection": "submission deadline is March 1st"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res chat.TurnResult
	decode(t, rec, &res)
	require.Equal(t, chat.StateCommitted, res.State)

	rec = ts.do(t, http.MethodPost, "/ask/selection", map[string]string{"question": "why?"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "a.pdf", "alpha page one text", "alpha page two text")
	ts.addDocument(t, "d2", "b.pdf", "beta text")

	rec := ts.do(t, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Documents []documentView `json:"documents"`
		Active    string         `json:"active_document_id"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Documents, 2)
	require.Equal(t, "d1", list.Active)
	require.True(t, list.Documents[0].Active)

	rec = ts.do(t, http.MethodPut, "/documents/d1/page", map[string]int{"page": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	d, _ := ts.lib.Get("d1")
	require.Equal(t, 2, d.CurrentPage)

	rec = ts.do(t, http.MethodPut, "/documents/d1/page", map[string]int{"page": 9})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/documents/d1/chunks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chunks struct {
		Chunks []models.Chunk `json:"chunks"`
	}
	decode(t, rec, &chunks)
	require.Len(t, chunks.Chunks, 2)

	rec = ts.do(t, http.MethodGet, "/documents/d1/file", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = ts.do(t, http.MethodDelete, "/documents/d1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "d2", ts.lib.ActiveID())
	require.NotEmpty(t, ts.session.saved)
	require.Equal(t, "d2", ts.session.saved[len(ts.session.saved)-1].ActiveDocumentID)

	rec = ts.do(t, http.MethodGet, "/documents/d1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "DQ-API-4004", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/documents/d2/chunks", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	ts := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("plain text"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 0, ts.lib.Len())
}

func TestUploadWithoutFile(t *testing.T) {
	ts := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "No PDF file was provided.")
}

func TestOCRReplacesScannedUpload(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.pending["scan1"] = models.ManagedDocument{ID: "scan1", Name: "scan.pdf", File: []byte("%PDF-1.4 scanned"), CurrentPage: 1}

	rec := ts.do(t, http.MethodPost, "/documents/scan1/ocr", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "DQ-API-5030", errorCode(t, rec))

	ts.ocr.configured = true
	ts.ocr.pages = []models.PageText{{PageNumber: 1, Text: "recognized invoice total is forty dollars"}}
	rec = ts.do(t, http.MethodPost, "/documents/scan1/ocr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, ts.ocr.calls)

	d, ok := ts.lib.Get("scan1")
	require.True(t, ok)
	require.NotEmpty(t, d.Chunks)
	_, stillPending := ts.srv.pending["scan1"]
	require.False(t, stillPending)

	rec = ts.do(t, http.MethodGet, "/documents/scan1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestSessionRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "a.pdf", "alpha text")
	ts.addDocument(t, "d2", "b.pdf", "beta text")

	rec := ts.do(t, http.MethodPut, "/session", map[string]any{
		"active_document_id": "d2",
		"selected_model":     map[string]string{"provider": "mock", "model": "tiny"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/session", nil)
	var st models.SessionState
	decode(t, rec, &st)
	require.Equal(t, "d2", st.ActiveDocumentID)
	require.Equal(t, "tiny", st.Selected.Model)

	rec = ts.do(t, http.MethodPut, "/session", map[string]any{"active_document_id": "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreAppliesSavedSession(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "a.pdf", "alpha text")
	ts.addDocument(t, "d2", "b.pdf", "beta text")
	ts.session.saved = []models.SessionState{{ActiveDocumentID: "d2", Selected: models.Selection{Provider: "mock", Model: "m2"}}}

	require.NoError(t, ts.srv.Restore(context.Background()))
	require.Equal(t, "d2", ts.lib.ActiveID())
	require.Equal(t, "m2", ts.srv.orch.Selection().Model)
}

func TestQuota(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/quota", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var q struct {
		Used      int `json:"used"`
		Remaining int `json:"remaining"`
		Limit     int `json:"limit"`
	}
	decode(t, rec, &q)
	require.Equal(t, 2, q.Used)
	require.Equal(t, 3, q.Remaining)
	require.Equal(t, 5, q.Limit)
}

func TestSummaryStoresOnDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.addDocument(t, "d1", "a.pdf", "alpha text about budgets")

	rec := ts.do(t, http.MethodPost, "/documents/d1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res chat.TurnResult
	decode(t, rec, &res)
	require.Equal(t, models.KindSummary, res.Message.Kind)
	d, _ := ts.lib.Get("d1")
	require.Equal(t, "Mock summary of the document.", d.Summary)

	rec = ts.do(t, http.MethodPost, "/documents/nope/summary", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToAPIErrorCodes(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:            "DQ-API-4001",
		http.StatusNotFound:              "DQ-API-4004",
		http.StatusConflict:              "DQ-API-4009",
		http.StatusUnprocessableEntity:   "DQ-API-4220",
		http.StatusRequestEntityTooLarge: "DQ-API-4013",
		http.StatusBadGateway:            "DQ-API-5020",
		http.StatusInternalServerError:   "DQ-API-5000",
	}
	for status, want := range cases {
		assert.Equal(t, want, toAPIError(status, nil).Code, "status %d", status)
	}
	assert.Equal(t, "DQ-DB-5002", toAPIError(500, errString("dial tcp 127.0.0.1:5432: connection refused")).Code)
	assert.Equal(t, "A question is already being answered.", toAPIError(http.StatusConflict, chat.ErrBusy).Message)
}

type errString string

func (e errString) Error() string { return string(e) }

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodOptions, "/ask", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
