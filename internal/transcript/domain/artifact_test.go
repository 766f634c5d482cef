package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/taxverify/internal/config"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		artifact Artifact
		kind     Kind
		ctype    string
		err      error
	}{
		{"json sniffed", Artifact{Data: []byte(`{"metadata":{}}`)}, KindStructured, ContentTypeJSON, nil},
		{"json by header", Artifact{Data: []byte(`{"a":`), DeclaredType: "application/json; charset=utf-8"}, KindStructured, ContentTypeJSON, nil},
		{"pdf", Artifact{Data: []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")}, KindOpaque, ContentTypePDF, nil},
		{"png", Artifact{Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")}, KindOpaque, ContentTypePNG, nil},
		{"jpeg", Artifact{Data: []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")}, KindOpaque, ContentTypeJPEG, nil},
		{"text", Artifact{Data: []byte("just some words"), DeclaredType: "text/plain"}, "", "", ErrUnsupportedType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, ctype, err := Classify(tc.artifact)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if kind != tc.kind || ctype != tc.ctype {
				t.Fatalf("got (%s, %s), want (%s, %s)", kind, ctype, tc.kind, tc.ctype)
			}
		})
	}
}

func TestParseStructuredPolicies(t *testing.T) {
	complete := []byte(`{"metadata":{"employers":["Acme"]},"income_by_year":{"2023":{}}}`)
	partial := []byte(`{"income_by_year":{"2023":{}}}`)

	if _, err := ParseStructured(complete, config.ArtifactPolicyStrict); err != nil {
		t.Fatalf("strict complete: %v", err)
	}

	_, err := ParseStructured(partial, config.ArtifactPolicyStrict)
	var malformed *MalformedArtifactError
	if !errors.As(err, &malformed) || malformed.Reason != "missing metadata section" {
		t.Fatalf("expected missing metadata, got %v", err)
	}
	if !errors.Is(err, ErrMalformedArtifact) {
		t.Fatalf("expected ErrMalformedArtifact in chain")
	}

	doc, err := ParseStructured(partial, config.ArtifactPolicyPermissive)
	if err != nil {
		t.Fatalf("permissive partial: %v", err)
	}
	if _, ok := doc["income_by_year"]; !ok {
		t.Fatalf("expected document to be returned as-is")
	}

	// unknown policies fall back to strict
	if _, err := ParseStructured(partial, "lenient"); !errors.Is(err, ErrMalformedArtifact) {
		t.Fatalf("expected strict fallback, got %v", err)
	}
}

func TestParseStructuredRejectsNonObjects(t *testing.T) {
	for _, body := range []string{`[1,2]`, `"text"`, `42`, `{"a":`} {
		for _, policy := range []string{config.ArtifactPolicyStrict, config.ArtifactPolicyPermissive} {
			if _, err := ParseStructured([]byte(body), policy); !errors.Is(err, ErrMalformedArtifact) {
				t.Fatalf("%s/%s: expected malformed, got %v", body, policy, err)
			}
		}
	}
}

func TestParseStructuredKeepsNumbersExact(t *testing.T) {
	body := []byte(`{"metadata":{},"income_by_year":{"2023":50000,"2024":12345678901234567,"2025":1234.50}}`)
	doc, err := ParseStructured(body, config.ArtifactPolicyStrict)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := json.Marshal(doc["income_by_year"])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"2023":50000,"2024":12345678901234567,"2025":1234.50}`
	if string(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
}

func TestParseStructuredRejectsTrailingData(t *testing.T) {
	for _, body := range []string{
		`{"metadata":{},"income_by_year":{}} {}`,
		`{"metadata":{},"income_by_year":{}} trailing`,
	} {
		if _, err := ParseStructured([]byte(body), config.ArtifactPolicyPermissive); !errors.Is(err, ErrMalformedArtifact) {
			t.Fatalf("%q: expected malformed, got %v", body, err)
		}
	}
	if _, err := ParseStructured([]byte("{\"metadata\":{},\"income_by_year\":{}}\n"), config.ArtifactPolicyStrict); err != nil {
		t.Fatalf("trailing whitespace must be accepted: %v", err)
	}
}

func TestOpaqueContent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	content := OpaqueContent(Artifact{FileName: "w2.pdf", Data: make([]byte, 10)}, ContentTypePDF, at)
	if content["file_kind"] != ContentTypePDF || content["file_name"] != "w2.pdf" || content["file_size"] != 10 {
		t.Fatalf("unexpected content %v", content)
	}
	if content["uploaded_at"] != "2026-03-01T11:00:00Z" {
		t.Fatalf("unexpected uploaded_at %v", content["uploaded_at"])
	}
}
