package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"lootbox-backend/internal/models"
)

// ErrRejected means the wallet or the ledger declined the transaction.
var ErrRejected = errors.New("transaction rejected")

// SignerClient hands transactions to the wallet signing service, which signs
// and executes them. Each call submits at most once and is never retried.
type SignerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSignerClient(baseURL string, httpClient *http.Client) *SignerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &SignerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (s *SignerClient) Submit(ctx context.Context, tx models.TransactionSpec) (models.SubmitResult, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return models.SubmitResult{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return models.SubmitResult{}, fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.SubmitResult{}, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.SubmitResult{}, fmt.Errorf("failed to read submit response: %w", err)
	}

	parsed := gjson.ParseBytes(data)

	if resp.StatusCode >= 400 {
		reason := parsed.Get("error").String()
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return models.SubmitResult{}, fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	result := models.SubmitResult{
		Digest: parsed.Get("digest").String(),
		Status: parsed.Get("effects.status.status").String(),
	}
	if result.Status == "" {
		result.Status = parsed.Get("status").String()
	}

	if result.Status == "failure" {
		reason := parsed.Get("effects.status.error").String()
		if reason == "" {
			reason = "execution failed"
		}
		return result, fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	if result.Digest == "" {
		return result, fmt.Errorf("submit: response has no digest")
	}

	return result, nil
}
