package correlation

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	_, cid := EnsureCorrelationID(ctx)
	if cid != "cid-1" {
		t.Fatalf("expected existing id, got %q", cid)
	}
}

func TestSetHeaderGeneratesID(t *testing.T) {
	req := httptest.NewRequest("POST", "http://example.com/hook", nil)
	cid := SetHeader(context.Background(), req)
	if cid == "" || req.Header.Get(Header) != cid {
		t.Fatalf("expected header %q to carry %q", req.Header.Get(Header), cid)
	}
}

func TestContextWithRemoteSpanIgnoresBadIDs(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithRemoteSpan(ctx, "zz", "yy"); got != ctx {
		t.Fatalf("expected unchanged context")
	}
}
