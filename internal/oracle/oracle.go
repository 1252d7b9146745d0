// Package oracle is the automated-verification collaborator: it scores photo
// evidence for a claimed workout. The engine treats every failure here as
// recoverable and falls back to leaving the block pending.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Request carries the claim to verify.
type Request struct {
	Exercise string `json:"exercise"`
	Reps     int    `json:"claimed_reps"`
	Photo    string `json:"photo"`
}

// Determination is the oracle's verdict on a proof photo.
type Determination struct {
	Verified   bool   `json:"verified"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

type Verifier interface {
	Verify(ctx context.Context, req Request) (Determination, error)
}

// HTTPVerifier posts claims to a remote vision-scoring endpoint.
type HTTPVerifier struct {
	Endpoint string
	APIKey   string
	Model    string
	Client   *http.Client
	Timeout  time.Duration
}

func (v *HTTPVerifier) Verify(ctx context.Context, req Request) (Determination, error) {
	if v.Endpoint == "" {
		return Determination{}, errors.New("oracle endpoint not configured")
	}
	timeout := v.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := map[string]any{
		"model":        v.Model,
		"exercise":     req.Exercise,
		"claimed_reps": req.Reps,
		"photo":        req.Photo,
		"prompt":       fmt.Sprintf("The participant claims %d reps of %s. Does the photo show real exercise?", req.Reps, req.Exercise),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Determination{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Determination{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+v.APIKey)
	}

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return Determination{}, fmt.Errorf("oracle request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Determination{}, fmt.Errorf("oracle status %d", res.StatusCode)
	}
	var det Determination
	if err := json.NewDecoder(res.Body).Decode(&det); err != nil {
		return Determination{}, fmt.Errorf("decode oracle response: %w", err)
	}
	if det.Confidence < 0 {
		det.Confidence = 0
	}
	if det.Confidence > 100 {
		det.Confidence = 100
	}
	return det, nil
}

// Fixed returns a canned determination; tests substitute it for the network.
type Fixed struct {
	Det Determination
	Err error
}

func (f Fixed) Verify(ctx context.Context, req Request) (Determination, error) {
	return f.Det, f.Err
}
