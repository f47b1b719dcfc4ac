package receipt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"fintrack/internal/shared/apperr"
)

// MockObjectStore is a mock implementation of ObjectStore interface
type MockObjectStore struct {
	PutFunc func(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

func (m *MockObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, body, size, contentType)
	}
	return "https://bucket/" + key, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestService(store ObjectStore, cfg Config) *Service {
	s := NewService(store, cfg)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	s.newID = func() string { return "abc" }
	return s
}

func TestUploadParams_Validate(t *testing.T) {
	body := strings.NewReader("x")
	tests := []struct {
		name    string
		params  UploadParams
		wantErr string
	}{
		{name: "valid", params: UploadParams{OwnerID: "u1", Size: 1, Body: body}},
		{name: "missing owner", params: UploadParams{Size: 1, Body: body}, wantErr: "ownerId is required"},
		{name: "guest owner", params: UploadParams{OwnerID: "guest", Size: 1, Body: body}, wantErr: "ownerId is required"},
		{name: "undefined owner", params: UploadParams{OwnerID: " undefined ", Size: 1, Body: body}, wantErr: "ownerId is required"},
		{name: "empty", params: UploadParams{OwnerID: "u1", Size: 0, Body: body}, wantErr: "receipt file is empty"},
		{name: "nil body", params: UploadParams{OwnerID: "u1", Size: 1}, wantErr: "receipt file is empty"},
		{name: "too large", params: UploadParams{OwnerID: "u1", Size: 11, Body: body}, wantErr: "receipt file exceeds 10 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate(10)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if apperr.Message(err) != tt.wantErr {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestService_Key(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		owner       string
		fileName    string
		contentType string
		want        string
	}{
		{name: "keeps extension", prefix: "receipts", owner: "u1", fileName: "Lunch.PNG", want: "receipts/u1/1700000000000-abc.png"},
		{name: "extension from type", prefix: "receipts/", owner: "u1", fileName: "scan", contentType: "application/pdf", want: "receipts/u1/1700000000000-abc.pdf"},
		{name: "owner escaped", prefix: "receipts", owner: "a b/c", fileName: "x.jpg", want: "receipts/a%20b%2Fc/1700000000000-abc.jpg"},
		{name: "no prefix", owner: "u1", fileName: "x.jpg", want: "u1/1700000000000-abc.jpg"},
		{name: "odd extension dropped", prefix: "receipts", owner: "u1", fileName: "x.<>", contentType: "image/png", want: "receipts/u1/1700000000000-abc.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(&MockObjectStore{}, Config{Prefix: tt.prefix})
			if got := s.Key(tt.owner, tt.fileName, tt.contentType); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestService_Upload(t *testing.T) {
	var gotKey, gotType string
	var gotBody []byte
	store := &MockObjectStore{
		PutFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
			gotKey, gotType = key, contentType
			gotBody, _ = io.ReadAll(body)
			return "https://fintrack-receipts.s3.amazonaws.com/" + key, nil
		},
	}
	s := newTestService(store, Config{Prefix: "receipts"})

	up, err := s.Upload(context.Background(), UploadParams{
		OwnerID:  "u1",
		FileName: "lunch.png",
		Size:     int64(len(pngHeader)),
		Body:     bytes.NewReader(pngHeader),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if gotType != "image/png" {
		t.Errorf("sniffed content type = %q, want image/png", gotType)
	}
	if !bytes.Equal(gotBody, pngHeader) {
		t.Error("stored body differs from the upload")
	}
	if up.Key != gotKey || up.Key != "receipts/u1/1700000000000-abc.png" {
		t.Errorf("Upload().Key = %q, stored under %q", up.Key, gotKey)
	}
	if up.Ref != "https://fintrack-receipts.s3.amazonaws.com/receipts/u1/1700000000000-abc.png" {
		t.Errorf("Upload().Ref = %q", up.Ref)
	}
}

func TestService_UploadRejections(t *testing.T) {
	called := false
	store := &MockObjectStore{
		PutFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
			called = true
			return "", nil
		},
	}
	s := newTestService(store, Config{MaxBytes: 8})

	_, err := s.Upload(context.Background(), UploadParams{OwnerID: "u1", Size: 5, Body: strings.NewReader("hello"), ContentType: "text/plain"})
	if !apperr.IsValidation(err) {
		t.Errorf("text upload error = %v, want validation", err)
	}

	_, err = s.Upload(context.Background(), UploadParams{OwnerID: "u1", Size: 9, Body: strings.NewReader("123456789"), ContentType: "image/png"})
	if !apperr.IsValidation(err) {
		t.Errorf("oversized upload error = %v, want validation", err)
	}

	if called {
		t.Error("store should not be called for rejected uploads")
	}
}

func TestService_UploadStoreFailure(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		wantKind apperr.Kind
	}{
		{name: "foreign error", storeErr: errors.New("connection reset"), wantKind: apperr.KindDependency},
		{name: "access error kept", storeErr: apperr.Access("failed to upload receipt", errors.New("AccessDenied")), wantKind: apperr.KindAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockObjectStore{
				PutFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
					return "", tt.storeErr
				},
			}
			s := newTestService(store, Config{})

			_, err := s.Upload(context.Background(), UploadParams{OwnerID: "u1", Size: 3, Body: strings.NewReader("pdf"), ContentType: "application/pdf"})
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("Upload() error kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
			if !errors.Is(err, tt.storeErr) && tt.wantKind == apperr.KindDependency {
				t.Error("Upload() should wrap the store error")
			}
		})
	}
}

func TestIsAllowedContentType(t *testing.T) {
	allowed := []string{"image/png", "IMAGE/JPEG", "application/pdf", "image/webp; charset=binary"}
	for _, ct := range allowed {
		if !IsAllowedContentType(ct) {
			t.Errorf("IsAllowedContentType(%q) = false", ct)
		}
	}
	for _, ct := range []string{"", "text/plain", "application/zip", "text/html; charset=utf-8"} {
		if IsAllowedContentType(ct) {
			t.Errorf("IsAllowedContentType(%q) = true", ct)
		}
	}
}
