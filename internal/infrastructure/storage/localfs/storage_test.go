package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/dualsaude/docreader/internal/core/domain"
)

func TestSaveCreatesNestedKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "exames/2026/03/laudo_0123456789.pdf"
	if err := store.Save(context.Background(), key, strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestSaveRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../escape.pdf", "exames/../../x", "/etc/passwd", " "} {
		err := store.Save(context.Background(), key, strings.NewReader("x"))
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected invalid input, got %v", key, err)
		}
	}
}
