package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

type docRepoFake struct {
	created  []*domain.Document
	statuses map[string]domain.DocumentStatus
	texts    map[string]string
	byID     map[string]*domain.Document
	deleted  []string

	createErr error
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{
		statuses: map[string]domain.DocumentStatus{},
		texts:    map[string]string{},
		byID:     map[string]*domain.Document{},
	}
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, doc)
	f.byID[doc.ID] = doc
	return nil
}
func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}
func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, _ string) error {
	f.statuses[id] = status
	return nil
}
func (f *docRepoFake) SaveText(_ context.Context, id, text string) error {
	f.texts[id] = text
	return nil
}
func (f *docRepoFake) SoftDelete(_ context.Context, _, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.byID, id)
	return nil
}

type storageFake struct {
	objects map[string]string
	deleted []string
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string]string{}}
}

func (f *storageFake) Save(_ context.Context, ownerID, objectID string, body io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	path := ownerID + "/" + objectID
	f.objects[path] = string(raw)
	return path, nil
}
func (f *storageFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	content, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}
func (f *storageFake) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	delete(f.objects, path)
	return nil
}

type queueFake struct {
	published  []string
	publishErr error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, documentID)
	return nil
}
func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

func TestUploadAcceptsAndEnqueues(t *testing.T) {
	docs := newDocRepoFake()
	storage := newStorageFake()
	queue := &queueFake{}
	uc := NewIngestUseCase(docs, storage, queue, nil)

	doc, err := uc.Upload(context.Background(), "patient-1", domain.KindLabResult,
		"cbc.txt", "text/plain", strings.NewReader("Hemoglobin 13.5"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %s", doc.Status)
	}
	if len(docs.created) != 1 {
		t.Fatalf("expected one created document, got %d", len(docs.created))
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("expected document id enqueued, got %v", queue.published)
	}
	if _, ok := storage.objects[doc.StoragePath]; !ok {
		t.Fatalf("expected object stored at %s", doc.StoragePath)
	}
}

func TestUploadRejectsUnknownKind(t *testing.T) {
	uc := NewIngestUseCase(newDocRepoFake(), newStorageFake(), &queueFake{}, nil)

	_, err := uc.Upload(context.Background(), "patient-1", domain.DocumentKind("diary"),
		"notes.txt", "text/plain", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUploadStripsPathFromFilename(t *testing.T) {
	docs := newDocRepoFake()
	uc := NewIngestUseCase(docs, newStorageFake(), &queueFake{}, nil)

	doc, err := uc.Upload(context.Background(), "patient-1", domain.KindReport,
		"../../etc/passwd", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Filename != "passwd" {
		t.Fatalf("expected sanitized filename, got %q", doc.Filename)
	}
}

func TestUploadMarksFailedWhenEnqueueFails(t *testing.T) {
	docs := newDocRepoFake()
	queue := &queueFake{publishErr: errors.New("nats down")}
	uc := NewIngestUseCase(docs, newStorageFake(), queue, nil)

	_, err := uc.Upload(context.Background(), "patient-1", domain.KindReport,
		"r.txt", "text/plain", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error when enqueue fails")
	}
	if len(docs.created) != 1 {
		t.Fatal("document record should exist for retry inspection")
	}
	if docs.statuses[docs.created[0].ID] != domain.StatusFailed {
		t.Fatalf("expected failed status, got %s", docs.statuses[docs.created[0].ID])
	}
}

func TestUploadCleansUpObjectWhenCreateFails(t *testing.T) {
	docs := newDocRepoFake()
	docs.createErr = errors.New("db down")
	storage := newStorageFake()
	uc := NewIngestUseCase(docs, storage, &queueFake{}, nil)

	_, err := uc.Upload(context.Background(), "patient-1", domain.KindReport,
		"r.txt", "text/plain", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error when create fails")
	}
	if len(storage.deleted) != 1 {
		t.Fatal("stored object must be cleaned up when the record cannot be created")
	}
}
