package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/smallbiznis/taxverify/internal/config"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypePDF  = "application/pdf"
	ContentTypePNG  = "image/png"
	ContentTypeJPEG = "image/jpeg"
)

var (
	ErrUnsupportedType   = errors.New("unsupported_file_type")
	ErrMalformedArtifact = errors.New("malformed_artifact")
)

// MalformedArtifactError is a structured upload that could not be used.
type MalformedArtifactError struct {
	Reason string
}

func (e *MalformedArtifactError) Error() string {
	return "invalid transcript format: " + e.Reason
}

func (e *MalformedArtifactError) Unwrap() error { return ErrMalformedArtifact }

// Artifact is one uploaded file.
type Artifact struct {
	FileName     string
	DeclaredType string
	Data         []byte
}

// Classify sniffs the artifact bytes and returns its kind and content type.
// JSON is also accepted on the declared part header, since short JSON bodies
// often sniff as plain text.
func Classify(a Artifact) (Kind, string, error) {
	detected := mimetype.Detect(a.Data)
	for _, allowed := range []string{ContentTypePDF, ContentTypePNG, ContentTypeJPEG} {
		if detected.Is(allowed) {
			return KindOpaque, allowed, nil
		}
	}
	if detected.Is(ContentTypeJSON) || isJSONHeader(a.DeclaredType) {
		return KindStructured, ContentTypeJSON, nil
	}
	return "", detected.String(), ErrUnsupportedType
}

func isJSONHeader(value string) bool {
	mediaType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(value)), ";")
	return strings.TrimSpace(mediaType) == ContentTypeJSON
}

// ParseStructured decodes a JSON transcript. The document must be an object;
// the strict policy also requires metadata and income_by_year objects.
func ParseStructured(data []byte, policy string) (map[string]any, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, &MalformedArtifactError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &MalformedArtifactError{Reason: "transcript must be a JSON object"}
	}
	if config.NormalizeArtifactPolicy(policy) == config.ArtifactPolicyPermissive {
		return obj, nil
	}
	if _, ok := obj["metadata"].(map[string]any); !ok {
		return nil, &MalformedArtifactError{Reason: "missing metadata section"}
	}
	if _, ok := obj["income_by_year"].(map[string]any); !ok {
		return nil, &MalformedArtifactError{Reason: "missing income_by_year section"}
	}
	return obj, nil
}

// DecodeDocument decodes a single JSON value keeping numbers as json.Number,
// so amounts re-encode exactly as uploaded.
func DecodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return doc, nil
}

// OpaqueContent is what gets stored for artifacts that are not parsed.
func OpaqueContent(a Artifact, contentType string, at time.Time) map[string]any {
	return map[string]any{
		"file_kind":   contentType,
		"file_name":   a.FileName,
		"file_size":   len(a.Data),
		"uploaded_at": at.UTC().Format(time.RFC3339),
	}
}
