package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(NotFound, "study not found")
	if KindOf(err) != NotFound {
		t.Errorf("expected NotFound, got %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != Internal {
		t.Error("unclassified errors must map to Internal")
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := New(Conflict, "report id collision")
	outer := fmt.Errorf("storing report: %w", inner)
	if KindOf(outer) != Conflict {
		t.Errorf("expected Conflict through wrapping, got %s", KindOf(outer))
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := Wrap(PermissionDenied, "tenant mismatch", errors.New("detail"))
	if !errors.Is(err, &Error{Kind: PermissionDenied}) {
		t.Error("errors.Is must match by kind")
	}
	if errors.Is(err, &Error{Kind: NotFound}) {
		t.Error("errors.Is must not match a different kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{InvalidArgument, http.StatusBadRequest},
		{PermissionDenied, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{DownstreamUnavailable, http.StatusBadGateway},
		{Internal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(New(c.kind, "x")); got != c.want {
			t.Errorf("%s: expected %d, got %d", c.kind, c.want, got)
		}
	}
}

func TestMessageSuppressesDetail(t *testing.T) {
	err := Wrap(Internal, "operation failed", errors.New("connection refused to 10.0.0.5"))
	if Message(err) != "operation failed" {
		t.Errorf("unexpected message: %s", Message(err))
	}
	if Message(errors.New("raw cause")) != "internal error" {
		t.Error("unclassified error message must be generic")
	}
}
