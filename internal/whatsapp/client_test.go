package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, PhoneNumberID: "12345", AccessToken: "tok"})
	if err := c.SendText(context.Background(), "5511999990000", "ola"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if gotPath != "/12345/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["to"] != "5511999990000" || gotBody["type"] != "text" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestSendDocumentUploadsThenSends(t *testing.T) {
	var paths []string
	var uploadedFile []byte
	var msgBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parsing upload: %v", err)
			}
			f, _, err := r.FormFile("file")
			if err != nil {
				t.Errorf("missing file part: %v", err)
			} else {
				uploadedFile, _ = io.ReadAll(f)
			}
			w.Write([]byte(`{"id":"media-42"}`))
		case strings.HasSuffix(r.URL.Path, "/messages"):
			if err := json.NewDecoder(r.Body).Decode(&msgBody); err != nil {
				t.Errorf("decoding message: %v", err)
			}
			w.Write([]byte(`{"messages":[{"id":"wamid.2"}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, PhoneNumberID: "12345", AccessToken: "tok"})
	err := c.SendDocument(context.Background(), "5511999990000", []byte("%PDF-1.4"), "doc.pdf", "Segunda via")
	if err != nil {
		t.Fatalf("SendDocument: %v", err)
	}

	if len(paths) != 2 || paths[0] != "/12345/media" || paths[1] != "/12345/messages" {
		t.Fatalf("call sequence = %v", paths)
	}
	if string(uploadedFile) != "%PDF-1.4" {
		t.Fatalf("uploaded bytes = %q", uploadedFile)
	}
	doc, ok := msgBody["document"].(map[string]any)
	if !ok || doc["id"] != "media-42" || doc["filename"] != "doc.pdf" {
		t.Fatalf("document payload = %v", msgBody["document"])
	}
}

func TestSendDocumentUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, PhoneNumberID: "12345", AccessToken: "tok"})
	err := c.SendDocument(context.Background(), "5511999990000", []byte("x"), "doc.pdf", "")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected upload error with status, got %v", err)
	}
}
