package domain

// Verification statuses for a workout block.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusFlagged  = "flagged"
	StatusRejected = "rejected"
)

// Challenge lifecycle statuses.
const (
	ChallengeDraft      = "draft"
	ChallengeActive     = "active"
	ChallengeFinalizing = "finalizing"
	ChallengeSettled    = "settled"
)

type Workout struct {
	ID                 string  `json:"id"`
	Exercise           string  `json:"exercise"`
	Reps               int     `json:"reps"`
	Sets               int     `json:"sets"`
	DurationSecs       *int    `json:"duration_secs,omitempty"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	Photo              *string `json:"photo,omitempty"`
	SelfAttested       bool    `json:"self_attested"`
	VerificationStatus string  `json:"verification_status" enum:"pending,verified,flagged,rejected"`
	OracleReason       *string `json:"oracle_reason,omitempty"`
	OracleConfidence   *int    `json:"oracle_confidence,omitempty"`
	ValidatorNote      *string `json:"validator_note,omitempty"`
	Submitter          string  `json:"submitter"`
	ChallengeID        *string `json:"challenge_id,omitempty"`
	Imported           bool    `json:"imported"`
}

type Challenge struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	TargetDays     int     `json:"target_days"`
	CurrentDays    int     `json:"current_days"`
	Joined         bool    `json:"joined"`
	StartDate      *string `json:"start_date,omitempty" format:"date-time"`
	Creator        *string `json:"creator,omitempty"`
	Category       string  `json:"category" enum:"strength,endurance,genesis,sprint,community"`
	RewardSats     *int    `json:"reward_sats,omitempty"`
	Recurrence     string  `json:"recurrence" enum:"once,daily,weekly,monthly"`
	Status         string  `json:"status" enum:"draft,active,finalizing,settled"`
	PayoutProofURL *string `json:"payout_proof_url,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

// UserStats is derived from the workout log and never persisted on its own.
type UserStats struct {
	Streak           int    `json:"streak"`
	LastActivityDate string `json:"last_activity_date,omitempty"`
	TotalReps        int    `json:"total_reps"`
	TotalSets        int    `json:"total_sets"`
}

// PeerWorkout is a relay entry: a workout as seen from the network view.
// Photos never travel over the relay.
type PeerWorkout struct {
	ID        string `json:"id"`
	PeerName  string `json:"peer_name"`
	Location  string `json:"location"`
	Exercise  string `json:"exercise"`
	Reps      int    `json:"reps"`
	Sets      int    `json:"sets"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
