package provider

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
)

// HTTPProvider implementa Provider contra un OTP API remoto.
// El API remoto es dueño del challenge y del código; acá solo correlacionamos.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPProvider crea el cliente con timeout acotado.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

type sendChallengeRequest struct {
	Contact string `json:"contact"`
}

type sendChallengeResponse struct {
	Handle string `json:"handle"`
}

type verifyChallengeRequest struct {
	Handle string `json:"handle"`
	Code   string `json:"code"`
}

type verifyChallengeResponse struct {
	SessionProof string `json:"session_proof"`
}

func (p *HTTPProvider) SendChallenge(ctx context.Context, contact string) (string, error) {
	var out sendChallengeResponse
	err := p.post(ctx, "/v1/challenges", sendChallengeRequest{Contact: contact}, &out)
	if err != nil {
		return "", err
	}
	if out.Handle == "" {
		return "", fmt.Errorf("provider: empty handle in response")
	}
	return out.Handle, nil
}

func (p *HTTPProvider) VerifyChallenge(ctx context.Context, handle, code string) (string, error) {
	var out verifyChallengeResponse
	err := p.post(ctx, "/v1/challenges/verify", verifyChallengeRequest{Handle: handle, Code: code}, &out)
	if err != nil {
		return "", err
	}
	if out.SessionProof == "" {
		return "", fmt.Errorf("provider: empty session proof in response")
	}
	return out.SessionProof, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("provider: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrUpstreamTimeout
		}
		return fmt.Errorf("provider: request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("provider: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return json.Unmarshal(b, out)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrInvalidOrExpiredCode
	default:
		return fmt.Errorf("provider: upstream returned %d", resp.StatusCode)
	}
}
