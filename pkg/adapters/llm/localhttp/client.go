// Package localhttp is the JSON-over-HTTP transport shared by the local
// backends.
package localhttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/goccy/go-json"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// PostJSON posts reqBody to path and decodes the response into respBody.
// Failures are reported as *domain.BackendError.
func PostJSON(ctx context.Context, backend string, client credentials.LocalClient, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.URL(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return domain.NewBackendError(backend, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.NewBackendError(backend, resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return &domain.BackendError{Backend: backend, Kind: domain.KindProtocol, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
