package bitfitsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal BitFitness HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Workout represents a workout block.
type Workout struct {
	ID                 string  `json:"id"`
	Exercise           string  `json:"exercise"`
	Reps               int     `json:"reps"`
	Sets               int     `json:"sets"`
	DurationSecs       *int    `json:"duration_secs,omitempty"`
	CreatedAt          string  `json:"created_at"`
	SelfAttested       bool    `json:"self_attested"`
	VerificationStatus string  `json:"verification_status"`
	OracleReason       *string `json:"oracle_reason,omitempty"`
	OracleConfidence   *int    `json:"oracle_confidence,omitempty"`
	ValidatorNote      *string `json:"validator_note,omitempty"`
	Submitter          string  `json:"submitter"`
	ChallengeID        *string `json:"challenge_id,omitempty"`
	Imported           bool    `json:"imported"`
}

// Challenge represents a challenge.
type Challenge struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	TargetDays     int     `json:"target_days"`
	CurrentDays    int     `json:"current_days"`
	Joined         bool    `json:"joined"`
	Category       string  `json:"category"`
	RewardSats     *int    `json:"reward_sats,omitempty"`
	Recurrence     string  `json:"recurrence"`
	Status         string  `json:"status"`
	PayoutProofURL *string `json:"payout_proof_url,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// UserStats is the derived aggregate view.
type UserStats struct {
	Streak           int    `json:"streak"`
	LastActivityDate string `json:"last_activity_date,omitempty"`
	TotalReps        int    `json:"total_reps"`
	TotalSets        int    `json:"total_sets"`
}

// StatsSnapshot is the /stats response.
type StatsSnapshot struct {
	Stats      UserStats   `json:"stats"`
	Challenges []Challenge `json:"challenges"`
}

// PeerWorkout is a relay entry.
type PeerWorkout struct {
	ID        string `json:"id"`
	PeerName  string `json:"peer_name"`
	Location  string `json:"location"`
	Exercise  string `json:"exercise"`
	Reps      int    `json:"reps"`
	Sets      int    `json:"sets"`
	CreatedAt string `json:"created_at"`
}

// NetworkStats is the relay stats response.
type NetworkStats struct {
	TotalReps   int `json:"total_reps"`
	ActiveNodes int `json:"active_nodes"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitWorkout logs a workout block.
func (c *Client) SubmitWorkout(ctx context.Context, exercise string, reps, sets int, photo *string) (Workout, error) {
	body := map[string]any{
		"exercise": exercise,
		"reps":     reps,
		"sets":     sets,
	}
	if photo != nil {
		body["photo"] = *photo
	} else {
		body["self_attested"] = true
	}
	var resp Workout
	err := c.do(ctx, http.MethodPost, "workouts", body, &resp)
	return resp, err
}

// Workouts lists the full log.
func (c *Client) Workouts(ctx context.Context) ([]Workout, error) {
	var resp struct {
		Items []Workout `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "workouts", nil, &resp)
	return resp.Items, err
}

// Workout fetches one block.
func (c *Client) Workout(ctx context.Context, id string) (Workout, error) {
	var resp Workout
	err := c.do(ctx, http.MethodGet, "workouts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Mempool lists workouts awaiting review.
func (c *Client) Mempool(ctx context.Context) ([]Workout, error) {
	var resp struct {
		Items []Workout `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "mempool", nil, &resp)
	return resp.Items, err
}

// Review applies a validator decision. Requires a validator bearer token.
func (c *Client) Review(ctx context.Context, id, status, note string) (Workout, error) {
	var resp Workout
	endpoint := fmt.Sprintf("workouts/%s/review", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status, "note": note}, &resp)
	return resp, err
}

// ImportWorkouts merges external records into the log.
func (c *Client) ImportWorkouts(ctx context.Context, workouts []Workout) (int, error) {
	var resp struct {
		Added int `json:"added"`
	}
	err := c.do(ctx, http.MethodPost, "workouts/import", map[string]any{"workouts": workouts}, &resp)
	return resp.Added, err
}

// Stats returns the derived snapshot.
func (c *Client) Stats(ctx context.Context) (StatsSnapshot, error) {
	var resp StatsSnapshot
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

// Challenges lists challenges with live progress.
func (c *Client) Challenges(ctx context.Context) ([]Challenge, error) {
	var resp struct {
		Items []Challenge `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "challenges", nil, &resp)
	return resp.Items, err
}

// JoinChallenge opts into an active challenge.
func (c *Client) JoinChallenge(ctx context.Context, id string) (Challenge, error) {
	var resp Challenge
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("challenges/%s/join", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// RequestSettlement asks for sats settlement with a public proof link.
func (c *Client) RequestSettlement(ctx context.Context, id, proofURL string) (Challenge, error) {
	var resp Challenge
	endpoint := fmt.Sprintf("challenges/%s/settlement", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"proof_url": proofURL}, &resp)
	return resp, err
}

// ResolveSettlement records the validator decision. Requires a validator token.
func (c *Client) ResolveSettlement(ctx context.Context, id string, approve bool, note string) (Challenge, error) {
	var resp Challenge
	endpoint := fmt.Sprintf("challenges/%s/settlement/resolve", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"approve": approve, "note": note}, &resp)
	return resp, err
}

// Relay returns the peer activity ledger.
func (c *Client) Relay(ctx context.Context) ([]PeerWorkout, error) {
	var resp struct {
		Items []PeerWorkout `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "relay", nil, &resp)
	return resp.Items, err
}

// RelayStats returns the network totals.
func (c *Client) RelayStats(ctx context.Context) (NetworkStats, error) {
	var resp NetworkStats
	err := c.do(ctx, http.MethodGet, "relay/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
