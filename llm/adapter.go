// Package llm provides the provider-agnostic model layer for the agent
// engine: canonical conversation types, one Adapter per provider family
// that translates tool definitions, tool calls, and tool results to and
// from each provider's native wire shape, and a Client that routes
// requests to registered adapters.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Adapter hides one provider family's request/response shapes behind a
// single contract. All parse-side operations consume the raw response body,
// so adapters that share a wire format can delegate without the loop
// noticing.
type Adapter interface {
	// Name returns the provider identifier used for routing.
	Name() string

	// Complete performs one model round trip and returns the provider's
	// raw response body.
	Complete(ctx context.Context, req Request) (*RawResponse, error)

	// FormatTools renders canonical tool definitions in the provider's
	// native form. Pure and deterministic; names and schemas round-trip
	// losslessly.
	FormatTools(tools []ToolDefinition) (interface{}, error)

	// FormatToolResults renders tool results as the provider-native
	// follow-up content. Error results are encoded distinguishably from
	// successes (a native flag where the protocol has one, a textual
	// prefix otherwise).
	FormatToolResults(results []ToolResult) (interface{}, error)

	// ParseToolCalls extracts tool calls from a raw response. A response
	// without tool calls yields an empty slice, not an error.
	ParseToolCalls(raw *RawResponse) ([]ToolCall, error)

	// IsToolCallResponse reports whether the response requests tool use.
	IsToolCallResponse(raw *RawResponse) bool

	// ExtractTextContent returns all text segments concatenated, or "".
	ExtractTextContent(raw *RawResponse) string

	// ExtractTokenUsage returns the reported usage, zero-filled when the
	// provider omits it.
	ExtractTokenUsage(raw *RawResponse) Usage
}

const defaultHTTPTimeout = 120 * time.Second

// postJSON marshals body, POSTs it with the given headers, and returns the
// response body. Non-2xx statuses are mapped into the error taxonomy with
// the provider's error message attached.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}, provider string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &InvalidRequestError{ProviderError: ProviderError{
			ClientError: ClientError{Message: "marshal request", Cause: err},
			Provider:    provider,
		}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ConfigurationError{ClientError: ClientError{Message: "build request", Cause: err}}
	}
	httpReq.Header.Set("content-type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &AbortError{ClientError: ClientError{Message: "request aborted", Cause: err}}
		}
		return nil, &NetworkError{ClientError: ClientError{Message: "request failed", Cause: err}}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{ClientError: ClientError{Message: "read response", Cause: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, code := extractAPIError(data)
		if message == "" {
			message = fmt.Sprintf("request failed: %s", resp.Status)
		}
		return nil, ErrorFromStatusCode(resp.StatusCode, message, provider, code, retryAfterSeconds(resp))
	}
	return data, nil
}

// extractAPIError pulls a human-readable message out of the common
// {"error": {...}} envelope both provider families use.
func extractAPIError(body []byte) (message, code string) {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}
	code = envelope.Error.Code
	if code == "" {
		code = envelope.Error.Type
	}
	return envelope.Error.Message, code
}

func retryAfterSeconds(resp *http.Response) *float64 {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return nil
	}
	if seconds, err := strconv.ParseFloat(header, 64); err == nil {
		return &seconds
	}
	if at, err := http.ParseTime(header); err == nil {
		seconds := time.Until(at).Seconds()
		if seconds > 0 {
			return &seconds
		}
	}
	return nil
}
