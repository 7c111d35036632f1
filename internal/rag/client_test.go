package rag

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", 5*time.Second, zap.NewNop())
}

func TestClient_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/query" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["question"] != "what is go?" {
			t.Errorf("unexpected question %q", body["question"])
		}
		_, _ = io.WriteString(w, `{"success":true,"answer":"a language","question":"what is go?",
			"sources":[{"file_name":"go.pdf","page_label":"3","score":0.91}]}`)
	})

	ans, err := c.Query(context.Background(), "  what is go?  ")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Answer != "a language" || len(ans.Sources) != 1 || ans.Sources[0].FileName != "go.pdf" {
		t.Fatalf("unexpected answer %+v", ans)
	}
}

func TestClient_QueryEmpty(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/api", time.Second, nil)
	if _, err := c.Query(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false,"error":"File not found"}`)
	})

	err := c.DeleteDocument(context.Background(), "missing.pdf")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "File not found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestClient_SuccessFalseWith200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"index not ready"}`)
	})
	var apiErr *APIError
	if err := c.RebuildIndex(context.Background()); !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(base+"/api", time.Second, zap.NewNop())
	if _, err := c.Health(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_ListDocuments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"documents":[{"filename":"a.txt","size":12,"modified_time":1700000000.5}],
			"total_count":1,"indexed_count":1}`)
	})
	list, err := c.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.TotalCount != 1 || list.Documents[0].Filename != "a.txt" || list.Documents[0].Size != 12 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestClient_Upload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "notes.md" || string(data) != "# notes" {
			t.Errorf("unexpected upload %s %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"success":true,"message":"uploaded","filename":"notes.md"}`)
	})

	name, err := c.Upload(context.Background(), "/tmp/notes.md", strings.NewReader("# notes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if name != "notes.md" {
		t.Fatalf("unexpected filename %q", name)
	}
}

func TestValidateUpload(t *testing.T) {
	cases := []struct {
		name string
		file string
		size int64
		want error
	}{
		{"pdf ok", "report.PDF", 10, nil},
		{"csv ok", "data.csv", MaxUploadSize, nil},
		{"exe rejected", "tool.exe", 10, ErrUnsupportedFileType},
		{"no extension", "README", 10, ErrUnsupportedFileType},
		{"too large", "big.txt", MaxUploadSize + 1, ErrFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUpload(tc.file, tc.size)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
