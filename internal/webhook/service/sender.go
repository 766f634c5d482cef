package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/taxverify/internal/webhook/domain"
	"github.com/smallbiznis/taxverify/pkg/telemetry/correlation"
)

const maxDrainBytes = 64 << 10

// Deliver makes a single POST of body to target. Any outcome other than a 2xx
// response is returned as a *domain.DeliveryError. The client's timeout bounds the attempt.
func Deliver(ctx context.Context, client *http.Client, target string, body []byte, userAgent string) (int, error) {
	parsed, err := url.Parse(strings.TrimSpace(target))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return 0, &domain.DeliveryError{Err: domain.ErrInvalidURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsed.String(), bytes.NewReader(body))
	if err != nil {
		return 0, &domain.DeliveryError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	correlation.SetHeader(ctx, req)

	resp, err := client.Do(req)
	if err != nil {
		return 0, &domain.DeliveryError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &domain.DeliveryError{StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}
