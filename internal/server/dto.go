package server

import (
	"bitfit/internal/domain"
)

// Request payloads

type SubmitWorkoutRequest struct {
	Exercise     string  `json:"exercise"`
	Reps         int     `json:"reps"`
	Sets         int     `json:"sets"`
	DurationSecs *int    `json:"duration_secs,omitempty"`
	Photo        *string `json:"photo,omitempty"`
	SelfAttested bool    `json:"self_attested,omitempty"`
	Submitter    string  `json:"submitter,omitempty"`
}

type ImportWorkoutsRequest struct {
	Workouts []domain.Workout `json:"workouts"`
}

type ReviewWorkoutRequest struct {
	Status string `json:"status" enum:"verified,flagged,rejected"`
	Note   string `json:"note,omitempty"`
}

type OracleResultRequest struct {
	Verified   bool   `json:"verified"`
	Confidence int    `json:"confidence" minimum:"0" maximum:"100"`
	Reason     string `json:"reason"`
}

type ForgeChallengeRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	TargetDays  int    `json:"target_days"`
	Category    string `json:"category,omitempty" enum:"strength,endurance,genesis,sprint,community"`
	RewardSats  int    `json:"reward_sats,omitempty"`
	Recurrence  string `json:"recurrence,omitempty" enum:"once,daily,weekly,monthly"`
	Draft       bool   `json:"draft,omitempty"`
}

type RequestSettlementRequest struct {
	ProofURL string `json:"proof_url"`
	Actor    string `json:"actor,omitempty"`
}

type ResolveSettlementRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note,omitempty"`
}

// Response payloads reuse the domain shapes; the API is the single consumer
// and the wire format is the storage format.

type StatsResponse struct {
	Stats      domain.UserStats   `json:"stats"`
	Challenges []domain.Challenge `json:"challenges"`
}

type ImportResponse struct {
	Added int `json:"added"`
}

type WorkoutListResponse struct {
	Items []domain.Workout `json:"items"`
}

type ChallengeListResponse struct {
	Items []domain.Challenge `json:"items"`
}

type RelayListResponse struct {
	Items []domain.PeerWorkout `json:"items"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}

func workoutItems(ws []domain.Workout) []domain.Workout {
	if ws == nil {
		return []domain.Workout{}
	}
	return ws
}

func challengeItems(cs []domain.Challenge) []domain.Challenge {
	if cs == nil {
		return []domain.Challenge{}
	}
	return cs
}

func peerItems(ps []domain.PeerWorkout) []domain.PeerWorkout {
	if ps == nil {
		return []domain.PeerWorkout{}
	}
	return ps
}

func eventItems(es []domain.Event) []domain.Event {
	if es == nil {
		return []domain.Event{}
	}
	return es
}
