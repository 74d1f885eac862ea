package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

func DecodeJSONBody[T any](r *http.Request) (T, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read body error: %w", err)
	}
	defer r.Body.Close()

	var data T
	if err := json.Unmarshal(body, &data); err != nil {
		var zero T
		return zero, fmt.Errorf("json unmarshal error: %w", err)
	}
	return data, nil
}

func DecodeJSONBodyResponse[T any](r *http.Response) (T, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read body error: %w", err)
	}
	defer r.Body.Close()

	var data T
	if len(bytes.TrimSpace(body)) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(body, &data); err != nil {
		var zero T
		return zero, fmt.Errorf("json unmarshal error: %w", err)
	}
	return data, nil
}

func WriteJSONResponse[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSONResponse(w, status, ErrorResponse{Error: msg})
}

// PostJSON posts body as JSON and decodes a JSON response into T. Any non-2xx
// status is an error.
func PostJSON[T any](ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (T, error) {
	var zero T
	payload, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if client == nil {
		client = &http.Client{Timeout: 25 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return zero, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return zero, fmt.Errorf("unexpected status from %s: %s", url, resp.Status)
	}
	return DecodeJSONBodyResponse[T](resp)
}
