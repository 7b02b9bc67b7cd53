package depot

import (
	"testing"

	"github.com/pkg/errors"
)

func TestKindOfUnwrapsThroughWraps(t *testing.T) {
	base := NotFoundError("no bundle for ref %q", "x")
	wrapped := errors.Wrap(base, "resolving dependency")
	doubly := errors.Wrap(wrapped, "get")

	if KindOf(doubly) != NotFound {
		t.Fatalf("expected kind %q, got %q", NotFound, KindOf(doubly))
	}
	if !IsNotFound(doubly) {
		t.Fatal("IsNotFound should see through pkg/errors wrapping")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != "" {
		t.Fatal("plain errors have no kind")
	}
	if KindOf(nil) != "" {
		t.Fatal("nil has no kind")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	e := NewError(NotABundle, errors.New("file is not a database"), "opening %s", "x-1.0.0.db")
	want := "opening x-1.0.0.db: file is not a database"
	if e.Error() != want {
		t.Fatalf("got %q, want %q", e.Error(), want)
	}
}
