package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitfit/internal/config"
	"bitfit/internal/domain"
	"bitfit/internal/events"
	"bitfit/internal/oracle"
	"bitfit/internal/relay"
	"bitfit/internal/repo"
	"bitfit/internal/stats"
)

// Engine owns the canonical workout and challenge collections and applies
// every mutating operation. Derived state is recomputed through the stats
// package; the engine never hand-maintains streaks or totals.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Oracle oracle.Verifier
	Relay  *relay.Service
	Now    func() time.Time
	Loc    *time.Location
	Log    logrus.FieldLogger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Loc:    time.Local,
		Log:    logrus.StandardLogger(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) loc() *time.Location {
	if e.Loc != nil {
		return e.Loc
	}
	return time.Local
}

func (e Engine) logger() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

func (e Engine) threshold() int {
	if e.Config != nil && e.Config.Verification.ConfidenceThreshold > 0 {
		return e.Config.Verification.ConfidenceThreshold
	}
	return 80
}

// DeriveState recomputes user stats and challenge progress from the current
// collections, refreshing the stored current_days columns along the way.
func (e Engine) DeriveState(ctx context.Context) (stats.Snapshot, error) {
	workouts, err := e.Repo.ListWorkouts(ctx)
	if err != nil {
		return stats.Snapshot{}, err
	}
	challenges, err := e.Repo.ListChallenges(ctx)
	if err != nil {
		return stats.Snapshot{}, err
	}
	snap := stats.Derive(workouts, challenges, e.now(), e.loc())
	days := make(map[string]int, len(snap.Challenges))
	for _, c := range snap.Challenges {
		days[c.ID] = c.CurrentDays
	}
	if err := e.Repo.RefreshChallengeDays(ctx, days); err != nil {
		return stats.Snapshot{}, err
	}
	return snap, nil
}

// WorkoutDraft is the submission input.
type WorkoutDraft struct {
	Exercise     string
	Reps         int
	Sets         int
	DurationSecs *int
	Photo        *string
	SelfAttested bool
	Submitter    string
}

// SubmitWorkout validates the draft, stamps the first eligible joined
// challenge, runs the oracle when a photo is attached, and records the block.
func (e Engine) SubmitWorkout(ctx context.Context, draft WorkoutDraft) (domain.Workout, error) {
	if e.Config == nil {
		return domain.Workout{}, errors.New("config not loaded")
	}
	if draft.Exercise == "" || !e.Config.KnownExercise(draft.Exercise) {
		return domain.Workout{}, ValidationError{Field: "exercise", Reason: fmt.Sprintf("unknown exercise %q", draft.Exercise)}
	}
	if draft.Reps <= 0 {
		return domain.Workout{}, ValidationError{Field: "reps", Reason: "must be positive"}
	}
	if draft.Sets <= 0 {
		return domain.Workout{}, ValidationError{Field: "sets", Reason: "must be positive"}
	}
	if draft.DurationSecs != nil {
		if *draft.DurationSecs <= 0 {
			return domain.Workout{}, ValidationError{Field: "duration_secs", Reason: "must be positive"}
		}
		if !e.Config.TimeBased(draft.Exercise) {
			return domain.Workout{}, ValidationError{Field: "duration_secs", Reason: fmt.Sprintf("%s is not time-based", draft.Exercise)}
		}
	}
	submitter := draft.Submitter
	if submitter == "" {
		submitter = e.Config.Participant.Name
	}

	now := e.now()
	w := domain.Workout{
		ID:                 uuid.New().String(),
		Exercise:           draft.Exercise,
		Reps:               draft.Reps,
		Sets:               draft.Sets,
		DurationSecs:       draft.DurationSecs,
		CreatedAt:          now.UTC().Format(time.RFC3339),
		Photo:              draft.Photo,
		SelfAttested:       draft.SelfAttested,
		VerificationStatus: domain.StatusPending,
		Submitter:          submitter,
	}

	challengeID, err := e.eligibleChallenge(ctx)
	if err != nil {
		return domain.Workout{}, err
	}
	if challengeID != "" {
		w.ChallengeID = &challengeID
	}

	// Single suspend point: the oracle runs before the record exists, so at
	// most one transition is ever applied, and a failure leaves the block
	// pending with a diagnostic reason.
	if draft.Photo != nil && e.Config.Oracle.Enabled && e.Oracle != nil {
		det, verr := e.Oracle.Verify(ctx, oracle.Request{Exercise: w.Exercise, Reps: w.Reps, Photo: *draft.Photo})
		if verr != nil {
			e.logger().WithError(verr).Warn("oracle unavailable; block stays pending")
			reason := "oracle network timeout"
			zero := 0
			w.OracleReason = &reason
			w.OracleConfidence = &zero
		} else {
			w.VerificationStatus = e.oracleStatus(det)
			w.OracleReason = &det.Reason
			confidence := det.Confidence
			w.OracleConfidence = &confidence
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workout{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkoutTx(ctx, tx, w); err != nil {
		return domain.Workout{}, err
	}
	payload := events.EventPayload{"exercise": w.Exercise, "reps": w.Reps, "status": w.VerificationStatus}
	if w.ChallengeID != nil {
		payload["challenge_id"] = *w.ChallengeID
	}
	if err := e.Events.Append(ctx, tx, "workout.submitted", "workout", w.ID, submitter, payload); err != nil {
		return domain.Workout{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workout{}, err
	}

	// Relay broadcast is fire-and-forget; a failure never voids the block.
	if e.Relay != nil {
		if err := e.Relay.Broadcast(ctx, w); err != nil {
			e.logger().WithError(err).Warn("relay broadcast failed")
		}
	}
	return w, nil
}

// eligibleChallenge picks the first joined, active, not-yet-complete
// challenge in creation order.
func (e Engine) eligibleChallenge(ctx context.Context) (string, error) {
	challenges, err := e.Repo.ListChallenges(ctx)
	if err != nil {
		return "", err
	}
	workouts, err := e.Repo.ListWorkouts(ctx)
	if err != nil {
		return "", err
	}
	days := stats.ChallengeDayCounts(workouts, e.loc())
	for _, c := range challenges {
		if c.Joined && c.Status == domain.ChallengeActive && days[c.ID] < c.TargetDays {
			return c.ID, nil
		}
	}
	return "", nil
}

func (e Engine) oracleStatus(det oracle.Determination) string {
	if det.Verified && det.Confidence >= e.threshold() {
		return domain.StatusVerified
	}
	return domain.StatusFlagged
}

// ApplyOracleResult applies a late oracle determination. It only acts while
// the block is still pending and untouched by the oracle; anything else is a
// no-op so a manual decision is never overridden.
func (e Engine) ApplyOracleResult(ctx context.Context, workoutID string, det oracle.Determination) (domain.Workout, error) {
	w, err := e.Repo.GetWorkout(ctx, workoutID)
	if err != nil {
		return domain.Workout{}, err
	}
	if w.VerificationStatus != domain.StatusPending || w.OracleConfidence != nil {
		return w, nil
	}
	w.VerificationStatus = e.oracleStatus(det)
	w.OracleReason = &det.Reason
	confidence := det.Confidence
	w.OracleConfidence = &confidence

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkoutVerificationTx(ctx, tx, w); err != nil {
		return w, err
	}
	if err := e.Events.Append(ctx, tx, "workout.oracle", "workout", w.ID, "oracle", events.EventPayload{
		"status":     w.VerificationStatus,
		"confidence": det.Confidence,
		"reason":     det.Reason,
	}); err != nil {
		return w, err
	}
	if err := tx.Commit(); err != nil {
		return w, err
	}
	return w, nil
}

func ensureVerificationTransition(oldStatus, newStatus string) error {
	if newStatus == domain.StatusRejected {
		return nil
	}
	switch oldStatus {
	case domain.StatusPending, domain.StatusFlagged:
		if newStatus == domain.StatusVerified || newStatus == domain.StatusFlagged {
			return nil
		}
	}
	return PreconditionError{Op: "verification", Reason: fmt.Sprintf("illegal transition %s -> %s", oldStatus, newStatus)}
}

// SetVerificationStatus is the manual validator path. Rejection removes the
// record permanently; the event log keeps the audit trail.
func (e Engine) SetVerificationStatus(ctx context.Context, workoutID, status string, note, actorID string) (domain.Workout, error) {
	switch status {
	case domain.StatusVerified, domain.StatusFlagged, domain.StatusRejected:
	default:
		return domain.Workout{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	w, err := e.Repo.GetWorkout(ctx, workoutID)
	if err != nil {
		return domain.Workout{}, err
	}
	if err := ensureVerificationTransition(w.VerificationStatus, status); err != nil {
		return w, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()

	if status == domain.StatusRejected {
		if err := e.Repo.DeleteWorkoutTx(ctx, tx, w.ID); err != nil {
			return w, err
		}
		if err := e.Events.Append(ctx, tx, "workout.rejected", "workout", w.ID, actorID, events.EventPayload{
			"exercise": w.Exercise,
			"reps":     w.Reps,
			"note":     note,
		}); err != nil {
			return w, err
		}
		if err := tx.Commit(); err != nil {
			return w, err
		}
		w.VerificationStatus = domain.StatusRejected
		return w, nil
	}

	from := w.VerificationStatus
	w.VerificationStatus = status
	if note != "" {
		w.ValidatorNote = &note
	}
	if err := e.Repo.UpdateWorkoutVerificationTx(ctx, tx, w); err != nil {
		return w, err
	}
	if err := e.Events.Append(ctx, tx, "workout.reviewed", "workout", w.ID, actorID, events.EventPayload{
		"from": from,
		"to":   status,
		"note": note,
	}); err != nil {
		return w, err
	}
	if err := tx.Commit(); err != nil {
		return w, err
	}
	return w, nil
}

// ImportWorkouts merges externally sourced records, deduplicating by id only.
// Records failing boundary validation are skipped, not fatal.
func (e Engine) ImportWorkouts(ctx context.Context, records []domain.Workout, actorID string) (int, error) {
	existing, err := e.Repo.WorkoutIDs(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	added := 0
	for _, w := range records {
		if w.ID == "" || existing[w.ID] {
			continue
		}
		if w.Reps <= 0 || w.Sets <= 0 || w.Exercise == "" {
			e.logger().WithField("id", w.ID).Warn("skipping invalid imported workout")
			continue
		}
		switch w.VerificationStatus {
		case domain.StatusPending, domain.StatusVerified, domain.StatusFlagged:
		case domain.StatusRejected:
			continue
		default:
			w.VerificationStatus = domain.StatusPending
		}
		if _, terr := time.Parse(time.RFC3339, w.CreatedAt); terr != nil {
			w.CreatedAt = e.now().UTC().Format(time.RFC3339)
		}
		// Imported records never carry a local challenge stamp.
		w.ChallengeID = nil
		w.Imported = true
		if err := e.Repo.InsertWorkoutTx(ctx, tx, w); err != nil {
			return 0, err
		}
		existing[w.ID] = true
		added++
	}
	if added > 0 {
		if err := e.Events.Append(ctx, tx, "workout.imported", "workout", "", actorID, events.EventPayload{"count": added}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// ChallengeDraftOptions are parameters for forging a challenge.
type ChallengeDraftOptions struct {
	ID          string
	Title       string
	Description string
	TargetDays  int
	Category    string
	RewardSats  int
	Recurrence  string
	Draft       bool
	Creator     string
}

// ForgeChallenge creates a challenge. Forged challenges start active and
// joined for their creator unless forged as a pre-publish draft.
func (e Engine) ForgeChallenge(ctx context.Context, opts ChallengeDraftOptions) (domain.Challenge, error) {
	if opts.Title == "" {
		return domain.Challenge{}, ValidationError{Field: "title", Reason: "is required"}
	}
	if opts.TargetDays <= 0 {
		return domain.Challenge{}, ValidationError{Field: "target_days", Reason: "must be positive"}
	}
	if opts.Category == "" {
		opts.Category = "community"
	}
	if opts.Recurrence == "" {
		opts.Recurrence = "once"
	}
	creator := opts.Creator
	if creator == "" && e.Config != nil {
		creator = e.Config.Participant.Name
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Challenge{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		TargetDays:  opts.TargetDays,
		Joined:      true,
		Creator:     &creator,
		Category:    opts.Category,
		Recurrence:  opts.Recurrence,
		Status:      domain.ChallengeActive,
		CreatedAt:   now,
	}
	if opts.RewardSats > 0 {
		c.RewardSats = &opts.RewardSats
	}
	if opts.Draft {
		c.Status = domain.ChallengeDraft
	} else {
		c.StartDate = &now
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChallengeTx(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "challenge.forged", "challenge", c.ID, creator, events.EventPayload{
		"title":  c.Title,
		"status": c.Status,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// PublishChallenge moves a pre-publish draft to active.
func (e Engine) PublishChallenge(ctx context.Context, challengeID, actorID string) (domain.Challenge, error) {
	c, err := e.Repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if c.Status != domain.ChallengeDraft {
		return c, PreconditionError{Op: "publish", Reason: fmt.Sprintf("challenge is %s, not draft", c.Status)}
	}
	now := e.now().UTC().Format(time.RFC3339)
	c.Status = domain.ChallengeActive
	c.StartDate = &now
	if err := e.updateChallenge(ctx, c, "challenge.published", actorID, events.EventPayload{}); err != nil {
		return c, err
	}
	return c, nil
}

// JoinChallenge opts the participant into an active catalog challenge.
func (e Engine) JoinChallenge(ctx context.Context, challengeID, actorID string) (domain.Challenge, error) {
	c, err := e.Repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if c.Status != domain.ChallengeActive {
		return c, PreconditionError{Op: "join", Reason: fmt.Sprintf("challenge is %s, not active", c.Status)}
	}
	if c.Joined {
		return c, PreconditionError{Op: "join", Reason: "already joined"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	c.Joined = true
	c.StartDate = &now
	if err := e.updateChallenge(ctx, c, "challenge.joined", actorID, events.EventPayload{}); err != nil {
		return c, err
	}
	return c, nil
}

// RequestSettlement moves a completed challenge to finalizing. Only the
// creator may request it, and the proof link must match a configured marker.
func (e Engine) RequestSettlement(ctx context.Context, challengeID, proofURL, actorID string) (domain.Challenge, error) {
	c, err := e.Repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if c.Status != domain.ChallengeActive {
		return c, PreconditionError{Op: "settlement", Reason: fmt.Sprintf("challenge is %s, not active", c.Status)}
	}
	if c.Creator == nil || *c.Creator != actorID {
		return c, PreconditionError{Op: "settlement", Reason: "only the creator may request settlement"}
	}
	if e.Config == nil || !e.Config.ProofURLAccepted(proofURL) {
		return c, ValidationError{Field: "proof_url", Reason: "must link to a recognized proof platform"}
	}
	workouts, err := e.Repo.ListWorkouts(ctx)
	if err != nil {
		return c, err
	}
	days := stats.ChallengeDayCounts(workouts, e.loc())
	if days[c.ID] < c.TargetDays {
		return c, PreconditionError{Op: "settlement", Reason: fmt.Sprintf("progress %d/%d days", days[c.ID], c.TargetDays)}
	}
	c.Status = domain.ChallengeFinalizing
	c.PayoutProofURL = &proofURL
	c.CurrentDays = days[c.ID]
	if err := e.updateChallenge(ctx, c, "challenge.settlement.requested", actorID, events.EventPayload{
		"proof_url": proofURL,
		"days":      days[c.ID],
	}); err != nil {
		return c, err
	}
	return c, nil
}

// ResolveSettlement is the validator's decision on a settlement request.
// Approval settles the challenge; rejection returns it to active and drops
// the proof link so a fresh one is required.
func (e Engine) ResolveSettlement(ctx context.Context, challengeID string, approve bool, note, actorID string) (domain.Challenge, error) {
	c, err := e.Repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if c.Status != domain.ChallengeFinalizing {
		return c, PreconditionError{Op: "resolve", Reason: fmt.Sprintf("challenge is %s, not finalizing", c.Status)}
	}
	if approve {
		c.Status = domain.ChallengeSettled
		if err := e.updateChallenge(ctx, c, "challenge.settled", actorID, events.EventPayload{"note": note}); err != nil {
			return c, err
		}
		return c, nil
	}
	proof := ""
	if c.PayoutProofURL != nil {
		proof = *c.PayoutProofURL
	}
	c.Status = domain.ChallengeActive
	c.PayoutProofURL = nil
	if err := e.updateChallenge(ctx, c, "challenge.settlement.rejected", actorID, events.EventPayload{
		"note":      note,
		"proof_url": proof,
	}); err != nil {
		return c, err
	}
	return c, nil
}

func (e Engine) updateChallenge(ctx context.Context, c domain.Challenge, evtType, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateChallengeTx(ctx, tx, c); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, "challenge", c.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
