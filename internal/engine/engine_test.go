package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bitfit/internal/config"
	"bitfit/internal/db"
	"bitfit/internal/domain"
	"bitfit/internal/engine"
	"bitfit/internal/migrate"
	"bitfit/internal/oracle"
	"bitfit/internal/repo"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advanceDays(n int) { c.t = c.t.AddDate(0, 0, n) }

func newTestEngine(t *testing.T) (engine.Engine, *clock) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clk := &clock{t: time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)}
	e := engine.New(conn, config.Default())
	e.Now = clk.now
	e.Loc = time.UTC
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	e.Log = log
	return e, clk
}

func submit(t *testing.T, e engine.Engine, draft engine.WorkoutDraft) domain.Workout {
	t.Helper()
	w, err := e.SubmitWorkout(context.Background(), draft)
	if err != nil {
		t.Fatalf("submit workout: %v", err)
	}
	return w
}

func insertChallenge(t *testing.T, e engine.Engine, c domain.Challenge) {
	t.Helper()
	tx, err := e.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Repo.InsertChallengeTx(context.Background(), tx, c); err != nil {
		t.Fatalf("insert challenge: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestSubmitWorkoutValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		draft engine.WorkoutDraft
	}{
		{"unknown exercise", engine.WorkoutDraft{Exercise: "Underwater Basket Weaving", Reps: 10, Sets: 1}},
		{"zero reps", engine.WorkoutDraft{Exercise: "Squats", Reps: 0, Sets: 1}},
		{"negative sets", engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: -1}},
		{"duration on rep exercise", engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1, DurationSecs: intPtr(60)}},
		{"non-positive duration", engine.WorkoutDraft{Exercise: "Plank", Reps: 1, Sets: 1, DurationSecs: intPtr(0)}},
	}
	for _, tc := range cases {
		_, err := e.SubmitWorkout(ctx, tc.draft)
		var verr engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}

	workouts, err := e.Repo.ListWorkouts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(workouts) != 0 {
		t.Fatalf("rejected drafts must not persist, found %d rows", len(workouts))
	}
}

func TestSubmitWorkoutDerivedState(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	w := submit(t, e, engine.WorkoutDraft{Exercise: "Push-ups", Reps: 20, Sets: 3})
	if w.VerificationStatus != domain.StatusPending {
		t.Fatalf("expected pending without photo, got %s", w.VerificationStatus)
	}
	if w.Submitter != e.Config.Participant.Name {
		t.Fatalf("expected default submitter, got %s", w.Submitter)
	}

	snap, err := e.DeriveState(ctx)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if snap.Stats.TotalReps != 20 || snap.Stats.TotalSets != 3 {
		t.Fatalf("totals = %d/%d, want 20/3", snap.Stats.TotalReps, snap.Stats.TotalSets)
	}
	if snap.Stats.Streak != 1 {
		t.Fatalf("streak = %d, want 1", snap.Stats.Streak)
	}
}

func TestSubmitStampsEligibleChallenge(t *testing.T) {
	e, clk := newTestEngine(t)

	insertChallenge(t, e, domain.Challenge{
		ID: "ch-settled", Title: "Finished", TargetDays: 2, Joined: true,
		Category: "community", Recurrence: "once", Status: domain.ChallengeSettled,
		CreatedAt: "2025-11-01T00:00:00Z",
	})
	insertChallenge(t, e, domain.Challenge{
		ID: "ch-not-joined", Title: "Spectator", TargetDays: 5, Joined: false,
		Category: "community", Recurrence: "once", Status: domain.ChallengeActive,
		CreatedAt: "2025-11-02T00:00:00Z",
	})
	insertChallenge(t, e, domain.Challenge{
		ID: "ch-eligible", Title: "Eligible", TargetDays: 2, Joined: true,
		Category: "community", Recurrence: "once", Status: domain.ChallengeActive,
		CreatedAt: "2025-11-03T00:00:00Z",
	})

	w := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 30, Sets: 3})
	if w.ChallengeID == nil || *w.ChallengeID != "ch-eligible" {
		t.Fatalf("expected stamp ch-eligible, got %v", w.ChallengeID)
	}

	clk.advanceDays(1)
	submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 30, Sets: 3})

	// Two distinct days reach the target, so the next block goes unstamped.
	clk.advanceDays(1)
	w3 := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 30, Sets: 3})
	if w3.ChallengeID != nil {
		t.Fatalf("completed challenge must not be stamped, got %v", *w3.ChallengeID)
	}
}

func TestOracleAutoVerification(t *testing.T) {
	photo := "cafebabe"
	cases := []struct {
		name       string
		det        oracle.Determination
		wantStatus string
	}{
		{"high confidence positive", oracle.Determination{Verified: true, Confidence: 95, Reason: "clear form"}, domain.StatusVerified},
		{"exact threshold", oracle.Determination{Verified: true, Confidence: 80, Reason: "just enough"}, domain.StatusVerified},
		{"low confidence positive", oracle.Determination{Verified: true, Confidence: 50, Reason: "blurry"}, domain.StatusFlagged},
		{"negative determination", oracle.Determination{Verified: false, Confidence: 90, Reason: "no exercise visible"}, domain.StatusFlagged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			e.Oracle = oracle.Fixed{Det: tc.det}
			w := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 25, Sets: 2, Photo: &photo})
			if w.VerificationStatus != tc.wantStatus {
				t.Fatalf("status = %s, want %s", w.VerificationStatus, tc.wantStatus)
			}
			if w.OracleConfidence == nil || *w.OracleConfidence != tc.det.Confidence {
				t.Fatalf("confidence not recorded: %v", w.OracleConfidence)
			}
			if w.OracleReason == nil || *w.OracleReason != tc.det.Reason {
				t.Fatalf("reason not recorded: %v", w.OracleReason)
			}
		})
	}
}

func TestOracleFailureLeavesPending(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Oracle = oracle.Fixed{Err: errors.New("connection refused")}
	photo := "deadbeef"

	w := submit(t, e, engine.WorkoutDraft{Exercise: "Burpees", Reps: 15, Sets: 3, Photo: &photo})
	if w.VerificationStatus != domain.StatusPending {
		t.Fatalf("oracle failure must leave block pending, got %s", w.VerificationStatus)
	}
	if w.OracleConfidence == nil || *w.OracleConfidence != 0 {
		t.Fatalf("expected fallback confidence 0, got %v", w.OracleConfidence)
	}
	if w.OracleReason == nil || *w.OracleReason == "" {
		t.Fatalf("expected fallback reason, got %v", w.OracleReason)
	}
}

func TestSubmitWithoutPhotoSkipsOracle(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Oracle = oracle.Fixed{Det: oracle.Determination{Verified: true, Confidence: 99, Reason: "should not run"}}

	w := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1, SelfAttested: true})
	if w.VerificationStatus != domain.StatusPending {
		t.Fatalf("self-attested block must stay pending, got %s", w.VerificationStatus)
	}
	if w.OracleConfidence != nil || w.OracleReason != nil {
		t.Fatalf("oracle fields must stay unset without a photo")
	}
}

func TestApplyOracleResultOnlyWhilePending(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	w := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1})
	got, err := e.ApplyOracleResult(ctx, w.ID, oracle.Determination{Verified: true, Confidence: 90, Reason: "late verdict"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.VerificationStatus != domain.StatusVerified {
		t.Fatalf("late oracle result should verify, got %s", got.VerificationStatus)
	}

	// A second verdict is a no-op: the first one owns the oracle fields.
	again, err := e.ApplyOracleResult(ctx, w.ID, oracle.Determination{Verified: false, Confidence: 10, Reason: "contradiction"})
	if err != nil {
		t.Fatalf("apply again: %v", err)
	}
	if again.VerificationStatus != domain.StatusVerified {
		t.Fatalf("second verdict must not override, got %s", again.VerificationStatus)
	}

	// Manual review also blocks a late oracle write.
	w2 := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1})
	if _, err := e.SetVerificationStatus(ctx, w2.ID, domain.StatusFlagged, "looks off", "validator"); err != nil {
		t.Fatalf("flag: %v", err)
	}
	after, err := e.ApplyOracleResult(ctx, w2.ID, oracle.Determination{Verified: true, Confidence: 99, Reason: "late"})
	if err != nil {
		t.Fatalf("apply after manual: %v", err)
	}
	if after.VerificationStatus != domain.StatusFlagged {
		t.Fatalf("manual decision must win, got %s", after.VerificationStatus)
	}
}

func TestSetVerificationStatusTransitions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	w := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1})

	flagged, err := e.SetVerificationStatus(ctx, w.ID, domain.StatusFlagged, "photo unclear", "validator")
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if flagged.VerificationStatus != domain.StatusFlagged {
		t.Fatalf("got %s", flagged.VerificationStatus)
	}
	if flagged.ValidatorNote == nil || *flagged.ValidatorNote != "photo unclear" {
		t.Fatalf("note not recorded: %v", flagged.ValidatorNote)
	}

	verified, err := e.SetVerificationStatus(ctx, w.ID, domain.StatusVerified, "", "validator")
	if err != nil {
		t.Fatalf("verify flagged: %v", err)
	}
	if verified.VerificationStatus != domain.StatusVerified {
		t.Fatalf("got %s", verified.VerificationStatus)
	}

	// Verified is terminal except for rejection.
	_, err = e.SetVerificationStatus(ctx, w.ID, domain.StatusFlagged, "", "validator")
	var perr engine.PreconditionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PreconditionError demoting verified, got %v", err)
	}

	if _, err := e.SetVerificationStatus(ctx, w.ID, "approved", "", "validator"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if _, err := e.SetVerificationStatus(ctx, "missing-id", domain.StatusVerified, "", "validator"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectionRemovesWorkout(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	keep := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1})
	drop := submit(t, e, engine.WorkoutDraft{Exercise: "Burpees", Reps: 50, Sets: 5})

	if _, err := e.SetVerificationStatus(ctx, drop.ID, domain.StatusRejected, "impossible volume", "validator"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := e.Repo.GetWorkout(ctx, drop.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected block must be gone, got %v", err)
	}

	snap, err := e.DeriveState(ctx)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if snap.Stats.TotalReps != keep.Reps || snap.Stats.TotalSets != keep.Sets {
		t.Fatalf("derived totals %d/%d must match the surviving block", snap.Stats.TotalReps, snap.Stats.TotalSets)
	}

	evts, err := e.Repo.LatestEvents(ctx, 5, "workout.rejected", "", drop.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("rejection must leave an audit event, found %d", len(evts))
	}
}

func TestImportWorkouts(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	local := submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1})

	records := []domain.Workout{
		{ID: local.ID, Exercise: "Squats", Reps: 99, Sets: 9, CreatedAt: "2025-11-01T10:00:00Z", VerificationStatus: domain.StatusVerified, Submitter: "peer"},
		{ID: "imp-1", Exercise: "Pull-ups", Reps: 12, Sets: 3, CreatedAt: "2025-11-02T10:00:00Z", VerificationStatus: domain.StatusVerified, Submitter: "peer"},
		{ID: "imp-2", Exercise: "Burpees", Reps: 0, Sets: 3, CreatedAt: "2025-11-03T10:00:00Z", VerificationStatus: domain.StatusVerified, Submitter: "peer"},
		{ID: "imp-3", Exercise: "Crunches", Reps: 40, Sets: 2, CreatedAt: "2025-11-04T10:00:00Z", VerificationStatus: domain.StatusRejected, Submitter: "peer"},
		{ID: "imp-4", Exercise: "Run", Reps: 1, Sets: 1, CreatedAt: "not-a-timestamp", VerificationStatus: "weird", Submitter: "peer"},
	}
	added, err := e.ImportWorkouts(ctx, records, "importer")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2 (dedup, invalid and rejected skipped)", added)
	}

	existing, err := e.Repo.GetWorkout(ctx, local.ID)
	if err != nil {
		t.Fatalf("get local: %v", err)
	}
	if existing.Reps != local.Reps {
		t.Fatalf("import must not overwrite existing block")
	}

	imp, err := e.Repo.GetWorkout(ctx, "imp-4")
	if err != nil {
		t.Fatalf("get imp-4: %v", err)
	}
	if !imp.Imported {
		t.Fatalf("imported flag not set")
	}
	if imp.VerificationStatus != domain.StatusPending {
		t.Fatalf("unknown status must normalize to pending, got %s", imp.VerificationStatus)
	}
	if _, terr := time.Parse(time.RFC3339, imp.CreatedAt); terr != nil {
		t.Fatalf("bad timestamp must be replaced, got %q", imp.CreatedAt)
	}

	// Re-running the same batch adds nothing.
	again, err := e.ImportWorkouts(ctx, records, "importer")
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if again != 0 {
		t.Fatalf("re-import added %d, want 0", again)
	}
}

func TestForgeAndPublishChallenge(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ForgeChallenge(ctx, engine.ChallengeDraftOptions{TargetDays: 5}); err == nil {
		t.Fatalf("expected error for missing title")
	}
	if _, err := e.ForgeChallenge(ctx, engine.ChallengeDraftOptions{Title: "No Days"}); err == nil {
		t.Fatalf("expected error for missing target days")
	}

	active, err := e.ForgeChallenge(ctx, engine.ChallengeDraftOptions{Title: "Morning Miner", TargetDays: 7, RewardSats: 2100})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	if active.Status != domain.ChallengeActive || !active.Joined || active.StartDate == nil {
		t.Fatalf("forged challenge should be active and joined: %+v", active)
	}
	if active.Creator == nil || *active.Creator != e.Config.Participant.Name {
		t.Fatalf("creator not stamped: %v", active.Creator)
	}

	draft, err := e.ForgeChallenge(ctx, engine.ChallengeDraftOptions{Title: "Cold Storage Cardio", TargetDays: 10, Draft: true})
	if err != nil {
		t.Fatalf("forge draft: %v", err)
	}
	if draft.Status != domain.ChallengeDraft || draft.StartDate != nil {
		t.Fatalf("draft should have no start date: %+v", draft)
	}

	published, err := e.PublishChallenge(ctx, draft.ID, "tester")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != domain.ChallengeActive || published.StartDate == nil {
		t.Fatalf("publish should activate: %+v", published)
	}

	var perr engine.PreconditionError
	if _, err := e.PublishChallenge(ctx, active.ID, "tester"); !errors.As(err, &perr) {
		t.Fatalf("publishing an active challenge must fail, got %v", err)
	}
}

func TestJoinChallenge(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	insertChallenge(t, e, domain.Challenge{
		ID: "ch-open", Title: "Open", TargetDays: 7, Joined: false,
		Category: "genesis", Recurrence: "once", Status: domain.ChallengeActive,
		CreatedAt: "2025-11-01T00:00:00Z",
	})
	insertChallenge(t, e, domain.Challenge{
		ID: "ch-draft", Title: "Unpublished", TargetDays: 7, Joined: false,
		Category: "community", Recurrence: "once", Status: domain.ChallengeDraft,
		CreatedAt: "2025-11-02T00:00:00Z",
	})

	joined, err := e.JoinChallenge(ctx, "ch-open", "tester")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !joined.Joined || joined.StartDate == nil {
		t.Fatalf("join should set membership and start date: %+v", joined)
	}

	var perr engine.PreconditionError
	if _, err := e.JoinChallenge(ctx, "ch-open", "tester"); !errors.As(err, &perr) {
		t.Fatalf("double join must fail, got %v", err)
	}
	if _, err := e.JoinChallenge(ctx, "ch-draft", "tester"); !errors.As(err, &perr) {
		t.Fatalf("joining a draft must fail, got %v", err)
	}
	if _, err := e.JoinChallenge(ctx, "missing", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSettlementLifecycle(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	creator := e.Config.Participant.Name

	c, err := e.ForgeChallenge(ctx, engine.ChallengeDraftOptions{Title: "Two Day PoW", TargetDays: 2, RewardSats: 4200})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}

	submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 20, Sets: 2})

	var perr engine.PreconditionError
	var verr engine.ValidationError

	// One day of progress is not enough.
	if _, err := e.RequestSettlement(ctx, c.ID, "https://x.com/satoshi/status/1", creator); !errors.As(err, &perr) {
		t.Fatalf("expected progress precondition, got %v", err)
	}

	clk.advanceDays(1)
	submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 20, Sets: 2})

	if _, err := e.RequestSettlement(ctx, c.ID, "https://example.com/post/1", creator); !errors.As(err, &verr) {
		t.Fatalf("expected proof-url validation error, got %v", err)
	}
	if _, err := e.RequestSettlement(ctx, c.ID, "https://x.com/satoshi/status/1", "stranger"); !errors.As(err, &perr) {
		t.Fatalf("expected creator-only precondition, got %v", err)
	}

	finalizing, err := e.RequestSettlement(ctx, c.ID, "https://x.com/satoshi/status/1", creator)
	if err != nil {
		t.Fatalf("request settlement: %v", err)
	}
	if finalizing.Status != domain.ChallengeFinalizing {
		t.Fatalf("got %s, want finalizing", finalizing.Status)
	}
	if finalizing.PayoutProofURL == nil || *finalizing.PayoutProofURL != "https://x.com/satoshi/status/1" {
		t.Fatalf("proof url not stored: %v", finalizing.PayoutProofURL)
	}

	// Double request fails while finalizing.
	if _, err := e.RequestSettlement(ctx, c.ID, "https://x.com/satoshi/status/2", creator); !errors.As(err, &perr) {
		t.Fatalf("expected finalizing precondition, got %v", err)
	}

	// Rejection returns to active and drops the proof link.
	back, err := e.ResolveSettlement(ctx, c.ID, false, "link shows someone else", "validator")
	if err != nil {
		t.Fatalf("reject settlement: %v", err)
	}
	if back.Status != domain.ChallengeActive || back.PayoutProofURL != nil {
		t.Fatalf("rejection should reopen the challenge: %+v", back)
	}

	// Second attempt with a fresh proof settles.
	if _, err := e.RequestSettlement(ctx, c.ID, "https://primal.net/e/abc", creator); err != nil {
		t.Fatalf("second request: %v", err)
	}
	settled, err := e.ResolveSettlement(ctx, c.ID, true, "looks legit", "validator")
	if err != nil {
		t.Fatalf("approve settlement: %v", err)
	}
	if settled.Status != domain.ChallengeSettled {
		t.Fatalf("got %s, want settled", settled.Status)
	}

	if _, err := e.ResolveSettlement(ctx, c.ID, true, "", "validator"); !errors.As(err, &perr) {
		t.Fatalf("resolving a settled challenge must fail, got %v", err)
	}
}

func TestDeriveStateRefreshesChallengeDays(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	c, err := e.ForgeChallenge(ctx, engine.ChallengeDraftOptions{Title: "Persisted Progress", TargetDays: 10})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1})
	clk.advanceDays(1)
	submit(t, e, engine.WorkoutDraft{Exercise: "Squats", Reps: 10, Sets: 1})

	if _, err := e.DeriveState(ctx); err != nil {
		t.Fatalf("derive: %v", err)
	}
	stored, err := e.Repo.GetChallenge(ctx, c.ID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if stored.CurrentDays != 2 {
		t.Fatalf("current_days = %d, want 2", stored.CurrentDays)
	}
}

func intPtr(v int) *int { return &v }
