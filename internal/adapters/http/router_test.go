package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/usecase"
)

type grantStoreFake struct{}

func (grantStoreFake) FindGrant(context.Context, string, string, domain.AccessScope) (*domain.AccessGrant, error) {
	return nil, nil
}

type auditSinkFake struct {
	entries []domain.AuditEntry
}

func (f *auditSinkFake) Record(_ context.Context, entry domain.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type embedderFake struct{}

func (embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func (embedderFake) Dimension() int { return 1 }

type indexFake struct {
	chunks  []domain.ScoredChunk
	removed []string
}

func (f *indexFake) Index(context.Context, *domain.Document, []domain.Chunk) error { return nil }

func (f *indexFake) Remove(_ context.Context, _, documentID string) error {
	f.removed = append(f.removed, documentID)
	return nil
}

func (f *indexFake) SearchSemantic(_ context.Context, ownerID string, _ []float32, _ int) ([]domain.ScoredChunk, error) {
	return f.owned(ownerID), nil
}

func (f *indexFake) SearchKeyword(_ context.Context, ownerID, _ string, _ int) ([]domain.ScoredChunk, error) {
	return f.owned(ownerID), nil
}

func (f *indexFake) owned(ownerID string) []domain.ScoredChunk {
	var out []domain.ScoredChunk
	for _, sc := range f.chunks {
		if sc.Chunk.OwnerID == ownerID {
			out = append(out, sc)
		}
	}
	return out
}

type generatorFake struct {
	reply string
}

func (f generatorFake) Generate(context.Context, string) (string, error) {
	return f.reply, nil
}

type answerStoreFake struct {
	saved []*domain.Answer
}

func (f *answerStoreFake) Save(_ context.Context, answer *domain.Answer) error {
	f.saved = append(f.saved, answer)
	return nil
}

type docRepoFake struct {
	docs    map[string]*domain.Document
	deleted []string
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.docs == nil {
		f.docs = map[string]*domain.Document{}
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		doc.Error = errMessage
	}
	return nil
}

func (f *docRepoFake) SaveText(_ context.Context, id, text string) error {
	if doc, ok := f.docs[id]; ok {
		doc.Text = text
	}
	return nil
}

func (f *docRepoFake) SoftDelete(_ context.Context, ownerID, id string) error {
	doc, ok := f.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return domain.ErrDocumentNotFound
	}
	f.deleted = append(f.deleted, id)
	delete(f.docs, id)
	return nil
}

type chunkRepoFake struct {
	deleted []string
}

func (f *chunkRepoFake) SaveAll(context.Context, []domain.Chunk) error { return nil }

func (f *chunkRepoFake) DeleteByDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type storageFake struct {
	objects map[string][]byte
}

func (f *storageFake) Save(_ context.Context, ownerID, objectID string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	path := ownerID + "/" + objectID
	f.objects[path] = data
	return path, nil
}

func (f *storageFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *storageFake) Delete(_ context.Context, path string) error {
	delete(f.objects, path)
	return nil
}

type queueFake struct {
	published []string
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

type routerFixture struct {
	index   *indexFake
	audit   *auditSinkFake
	answers *answerStoreFake
	docs    *docRepoFake
	chunks  *chunkRepoFake
	storage *storageFake
	queue   *queueFake
	handler http.Handler
}

func newRouterFixture(t *testing.T, reply string) *routerFixture {
	t.Helper()
	f := &routerFixture{
		index:   &indexFake{},
		audit:   &auditSinkFake{},
		answers: &answerStoreFake{},
		docs:    &docRepoFake{docs: map[string]*domain.Document{}},
		chunks:  &chunkRepoFake{},
		storage: &storageFake{},
		queue:   &queueFake{},
	}
	gate := usecase.NewAccessGate(grantStoreFake{}, f.audit, usecase.NormalPolicy(), usecase.EmergencyPolicy())
	engine := usecase.NewRetrievalEngine(embedderFake{}, f.index)
	composer := usecase.NewComposer(generatorFake{reply: reply}, 0)
	query := usecase.NewQueryUseCase(gate, engine, composer, f.answers, f.audit, nil)
	ingest := usecase.NewIngestUseCase(f.docs, f.storage, f.queue, nil)
	documents := usecase.NewDocumentUseCase(f.docs, f.chunks, f.index, f.storage, nil)
	f.handler = NewRouter(query, ingest, documents, nil, "api", nil).Handler()
	return f
}

func scoredChunk(id, ownerID, text string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:         id,
			DocumentID: "doc-1",
			OwnerID:    ownerID,
			Text:       text,
		},
		Score:      score,
		UploadedAt: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestQueryReturnsGroundedAnswer(t *testing.T) {
	reply := "Hemoglobin A1c measured at 6.1 percent on 12 March 2026."
	f := newRouterFixture(t, reply)
	f.index.chunks = []domain.ScoredChunk{
		scoredChunk("c-1", "patient-1", reply, 0.9),
	}

	body := `{"question":"what was my last a1c?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	req.Header.Set(requesterIDHeader, "patient-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var answer domain.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Text != reply {
		t.Fatalf("unexpected answer text: %s", answer.Text)
	}
	if len(answer.Citations) != 1 || answer.Citations[0].ChunkID != "c-1" {
		t.Fatalf("expected one citation on c-1, got %+v", answer.Citations)
	}
	if len(f.answers.saved) != 1 {
		t.Fatal("answer must be persisted")
	}
	if len(f.audit.entries) != 2 {
		t.Fatalf("expected authorized and answered audit entries, got %d", len(f.audit.entries))
	}
}

func TestQueryWithoutRequesterHeaderIsUnauthorized(t *testing.T) {
	f := newRouterFixture(t, "unused")

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"x"}`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(f.audit.entries) != 0 {
		t.Fatal("unauthenticated requests must not reach the gate")
	}
}

func TestQueryForStrangerRecordsIsForbidden(t *testing.T) {
	f := newRouterFixture(t, "unused")

	body := `{"owner_id":"patient-1","scope":"self","question":"meds?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	req.Header.Set(requesterIDHeader, "intruder")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not authorized") {
		t.Fatalf("denial body must stay generic, got %s", rec.Body.String())
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Outcome != domain.OutcomeDenied {
		t.Fatalf("expected exactly one denied audit entry, got %+v", f.audit.entries)
	}
}

func TestQueryRejectsBlankQuestion(t *testing.T) {
	f := newRouterFixture(t, "unused")

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"  "}`))
	req.Header.Set(requesterIDHeader, "patient-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadAcceptsMultipartAndEnqueues(t *testing.T) {
	f := newRouterFixture(t, "unused")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "labs.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("HbA1c: 6.1%\n")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("kind", string(domain.KindLabResult)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set(requesterIDHeader, "patient-1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.OwnerID != "patient-1" || doc.Status != domain.StatusPending {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(f.queue.published) != 1 || f.queue.published[0] != doc.ID {
		t.Fatalf("expected document %s enqueued, got %v", doc.ID, f.queue.published)
	}
}

func TestUploadWithoutFileFieldIsBadRequest(t *testing.T) {
	f := newRouterFixture(t, "unused")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", "lab_result"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set(requesterIDHeader, "patient-1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetDocumentHidesForeignRecords(t *testing.T) {
	f := newRouterFixture(t, "unused")
	f.docs.docs["doc-1"] = &domain.Document{ID: "doc-1", OwnerID: "patient-1", Status: domain.StatusProcessed}

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil)
	req.Header.Set(requesterIDHeader, "intruder")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign documents must look missing, got %d", rec.Code)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	f := newRouterFixture(t, "unused")
	f.docs.docs["doc-1"] = &domain.Document{
		ID:          "doc-1",
		OwnerID:     "patient-1",
		StoragePath: "patient-1/doc-1",
		Status:      domain.StatusProcessed,
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	req.Header.Set(requesterIDHeader, "patient-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.index.removed) != 1 || f.index.removed[0] != "doc-1" {
		t.Fatalf("expected index removal for doc-1, got %v", f.index.removed)
	}
	if len(f.chunks.deleted) != 1 {
		t.Fatal("expected chunk rows deleted")
	}
	if len(f.docs.deleted) != 1 {
		t.Fatal("expected document soft-deleted")
	}
}

func TestMethodNotAllowedOnQuery(t *testing.T) {
	f := newRouterFixture(t, "unused")

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	req.Header.Set(requesterIDHeader, "patient-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, "unused")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRecommendationsEndpointAnswersWithoutRecords(t *testing.T) {
	reply := "Schedule a routine checkup. This information is not a substitute for professional medical advice."
	f := newRouterFixture(t, reply)

	body := `{"question":"any lifestyle advice for me?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/recommendations", strings.NewReader(body))
	req.Header.Set(requesterIDHeader, "patient-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var answer domain.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Text != reply {
		t.Fatalf("unexpected recommendation text: %s", answer.Text)
	}
	if answer.Mode != domain.ModeHybrid {
		t.Fatalf("expected hybrid mode from the normal policy, got %q", answer.Mode)
	}
	if len(f.answers.saved) != 1 {
		t.Fatalf("expected recommendation persisted once, got %d", len(f.answers.saved))
	}
}
