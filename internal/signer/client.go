package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client es el cliente HTTP contra la red de threshold signing.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Timeout time.Duration
}

// NewClient crea el cliente con timeout acotado por llamada.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

type mintRequest struct {
	IdentityProof string `json:"identity_proof"`
}

type mintResponse struct {
	KeyHandle   string `json:"key_handle"`
	PublicKey   string `json:"public_key"`   // base64, secp256k1 sin comprimir
	ClientShare string `json:"client_share"` // base64
	ServerShare string `json:"server_share"` // base64
}

type signRequest struct {
	KeyHandle   string `json:"key_handle"`
	ClientShare string `json:"client_share"`
	ServerShare string `json:"server_share"`
	Digest      string `json:"digest"`
}

type signResponse struct {
	Signature string `json:"signature"` // base64, r||s||v
}

// Mint implementa RemoteSigner.
func (c *Client) Mint(ctx context.Context, identityProof string) (*MintResult, error) {
	var out mintResponse
	if err := c.post(ctx, "/v1/keys", mintRequest{IdentityProof: identityProof}, &out, ErrMintRejected); err != nil {
		return nil, err
	}

	pub, err := base64.StdEncoding.DecodeString(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("signer: decode public key: %w", err)
	}
	clientShare, err := base64.StdEncoding.DecodeString(out.ClientShare)
	if err != nil {
		return nil, fmt.Errorf("signer: decode client share: %w", err)
	}
	serverShare, err := base64.StdEncoding.DecodeString(out.ServerShare)
	if err != nil {
		return nil, fmt.Errorf("signer: decode server share: %w", err)
	}
	if out.KeyHandle == "" || len(pub) == 0 {
		return nil, fmt.Errorf("signer: malformed mint response")
	}

	return &MintResult{
		KeyHandle:   out.KeyHandle,
		PublicKey:   pub,
		ClientShare: clientShare,
		ServerShare: serverShare,
	}, nil
}

// ThresholdSign implementa RemoteSigner.
func (c *Client) ThresholdSign(ctx context.Context, req SignRequest) ([]byte, error) {
	in := signRequest{
		KeyHandle:   req.KeyHandle,
		ClientShare: base64.StdEncoding.EncodeToString(req.ClientShare),
		ServerShare: base64.StdEncoding.EncodeToString(req.ServerShare),
		Digest:      base64.StdEncoding.EncodeToString(req.Digest),
	}
	var out signResponse
	if err := c.post(ctx, "/v1/sign", in, &out, ErrSignFailed); err != nil {
		return nil, err
	}
	sig, err := base64.StdEncoding.DecodeString(out.Signature)
	if err != nil {
		return nil, fmt.Errorf("signer: decode signature: %w", err)
	}
	if len(sig) == 0 {
		return nil, ErrSignFailed
	}
	return sig, nil
}

// post ejecuta el POST con timeout y mapea status codes a errores de dominio.
// rejected es el sentinel para 4xx (el signer rechazó la operación).
func (c *Client) post(ctx context.Context, path string, in, out any, rejected error) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("signer: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("signer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrUpstreamTimeout
		}
		var nerr interface{ Timeout() bool }
		if errors.As(err, &nerr) && nerr.Timeout() {
			return ErrUpstreamTimeout
		}
		return fmt.Errorf("signer: request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("signer: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("signer: parse response: %w", err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// el body puede traer detalle, pero nunca lo propagamos: podría
		// incluir material sensible del protocolo remoto
		return rejected
	default:
		return fmt.Errorf("signer: upstream returned %d", resp.StatusCode)
	}
}
