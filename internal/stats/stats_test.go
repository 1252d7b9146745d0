package stats_test

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"bitfit/internal/domain"
	"bitfit/internal/stats"
)

var utc = time.UTC

func workoutAt(t time.Time, reps, sets int) domain.Workout {
	return domain.Workout{
		ID:                 t.Format(time.RFC3339Nano),
		Exercise:           "Squats",
		Reps:               reps,
		Sets:               sets,
		CreatedAt:          t.Format(time.RFC3339),
		VerificationStatus: domain.StatusPending,
	}
}

func challengeWorkout(t time.Time, challengeID string) domain.Workout {
	w := workoutAt(t, 10, 2)
	w.ID = challengeID + "-" + t.Format(time.RFC3339Nano)
	w.ChallengeID = &challengeID
	return w
}

func TestDeriveEmptyLog(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, utc)
	snap := stats.Derive(nil, []domain.Challenge{{ID: "ch1", TargetDays: 7}}, now, utc)
	if snap.Stats.Streak != 0 || snap.Stats.TotalReps != 0 || snap.Stats.TotalSets != 0 {
		t.Fatalf("expected zero stats, got %+v", snap.Stats)
	}
	if snap.Stats.LastActivityDate != "" {
		t.Fatalf("expected no last activity date, got %s", snap.Stats.LastActivityDate)
	}
	if snap.Challenges[0].CurrentDays != 0 {
		t.Fatalf("expected challenge days 0, got %d", snap.Challenges[0].CurrentDays)
	}
}

func TestDeriveSingleWorkoutToday(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 30, 0, 0, utc)
	snap := stats.Derive([]domain.Workout{workoutAt(now.Add(-2*time.Hour), 20, 3)}, nil, now, utc)
	if snap.Stats.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", snap.Stats.Streak)
	}
	if snap.Stats.TotalReps != 20 || snap.Stats.TotalSets != 3 {
		t.Fatalf("unexpected totals: %+v", snap.Stats)
	}
	if snap.Stats.LastActivityDate != "2026-03-10" {
		t.Fatalf("unexpected last activity date %s", snap.Stats.LastActivityDate)
	}
}

func TestDeriveContiguousStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	workouts := []domain.Workout{
		workoutAt(now, 10, 1),
		workoutAt(now.AddDate(0, 0, -1), 10, 1),
		workoutAt(now.AddDate(0, 0, -2), 10, 1),
	}
	snap := stats.Derive(workouts, nil, now, utc)
	if snap.Stats.Streak != 3 {
		t.Fatalf("expected streak 3, got %d", snap.Stats.Streak)
	}
}

func TestDeriveGapBreaksStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	workouts := []domain.Workout{
		workoutAt(now, 10, 1),
		workoutAt(now.AddDate(0, 0, -2), 10, 1),
	}
	snap := stats.Derive(workouts, nil, now, utc)
	if snap.Stats.Streak != 1 {
		t.Fatalf("expected streak 1 after gap, got %d", snap.Stats.Streak)
	}
}

func TestDeriveStaleChainReportsLastDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	workouts := []domain.Workout{
		workoutAt(now.AddDate(0, 0, -3), 10, 1),
		workoutAt(now.AddDate(0, 0, -4), 10, 1),
	}
	snap := stats.Derive(workouts, nil, now, utc)
	if snap.Stats.Streak != 0 {
		t.Fatalf("expected broken streak 0, got %d", snap.Stats.Streak)
	}
	if snap.Stats.LastActivityDate != "2026-03-07" {
		t.Fatalf("expected last activity reported, got %q", snap.Stats.LastActivityDate)
	}
}

func TestDeriveStreakEndingYesterday(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	workouts := []domain.Workout{
		workoutAt(now.AddDate(0, 0, -1), 10, 1),
		workoutAt(now.AddDate(0, 0, -2), 10, 1),
	}
	snap := stats.Derive(workouts, nil, now, utc)
	if snap.Stats.Streak != 2 {
		t.Fatalf("expected streak 2 ending yesterday, got %d", snap.Stats.Streak)
	}
}

func TestDeriveBucketsByCalendarDayNotElapsedHours(t *testing.T) {
	// 23:30 and 00:30 the next day are 1h apart but on different days.
	now := time.Date(2026, 3, 11, 8, 0, 0, 0, utc)
	workouts := []domain.Workout{
		workoutAt(time.Date(2026, 3, 10, 23, 30, 0, 0, utc), 5, 1),
		workoutAt(time.Date(2026, 3, 11, 0, 30, 0, 0, utc), 5, 1),
	}
	snap := stats.Derive(workouts, nil, now, utc)
	if snap.Stats.Streak != 2 {
		t.Fatalf("expected midnight boundary to yield streak 2, got %d", snap.Stats.Streak)
	}
}

func TestDeriveLocalTimezoneBucketing(t *testing.T) {
	// 01:00 UTC on March 11 is still March 10 in UTC-5.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, loc)
	workouts := []domain.Workout{
		workoutAt(time.Date(2026, 3, 11, 1, 0, 0, 0, utc), 5, 1),
	}
	snap := stats.Derive(workouts, nil, now, loc)
	if snap.Stats.LastActivityDate != "2026-03-10" {
		t.Fatalf("expected local-day bucketing, got %s", snap.Stats.LastActivityDate)
	}
	if snap.Stats.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", snap.Stats.Streak)
	}
}

func TestDeriveExcludesRejected(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	rejected := workoutAt(now, 100, 10)
	rejected.VerificationStatus = domain.StatusRejected
	kept := workoutAt(now.Add(-time.Hour), 20, 3)

	withRejected := stats.Derive([]domain.Workout{rejected, kept}, nil, now, utc)
	without := stats.Derive([]domain.Workout{kept}, nil, now, utc)
	if !reflect.DeepEqual(withRejected, without) {
		t.Fatalf("rejected workout leaked into aggregates: %+v vs %+v", withRejected, without)
	}
	if withRejected.Stats.TotalReps != 20 {
		t.Fatalf("expected rejected reps excluded, got %d", withRejected.Stats.TotalReps)
	}
}

func TestDeriveOrderIndependent(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	var workouts []domain.Workout
	for i := 0; i < 12; i++ {
		workouts = append(workouts, workoutAt(now.AddDate(0, 0, -i/2), 7+i, 2))
	}
	base := stats.Derive(workouts, nil, now, utc)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		shuffled := append([]domain.Workout(nil), workouts...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := stats.Derive(shuffled, nil, now, utc)
		if !reflect.DeepEqual(base, got) {
			t.Fatalf("derive not order independent: %+v vs %+v", base, got)
		}
	}
}

func TestDeriveIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	workouts := []domain.Workout{
		workoutAt(now, 10, 2),
		challengeWorkout(now.AddDate(0, 0, -1), "ch1"),
	}
	challenges := []domain.Challenge{{ID: "ch1", TargetDays: 7}}
	first := stats.Derive(workouts, challenges, now, utc)
	second := stats.Derive(workouts, challenges, now, utc)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("derive not idempotent")
	}
}

func TestDeriveDoesNotMutateInputs(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	challenges := []domain.Challenge{{ID: "ch1", TargetDays: 7, CurrentDays: 0}}
	workouts := []domain.Workout{challengeWorkout(now, "ch1")}
	snap := stats.Derive(workouts, challenges, now, utc)
	if snap.Challenges[0].CurrentDays != 1 {
		t.Fatalf("expected derived days 1, got %d", snap.Challenges[0].CurrentDays)
	}
	if challenges[0].CurrentDays != 0 {
		t.Fatalf("input challenge mutated: %d", challenges[0].CurrentDays)
	}
}

func TestChallengeDayCounting(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	workouts := []domain.Workout{
		challengeWorkout(now, "ch1"),
		challengeWorkout(now.Add(2*time.Hour), "ch1"), // same day, still one
		challengeWorkout(now.AddDate(0, 0, -1), "ch1"),
		challengeWorkout(now.AddDate(0, 0, -1), "ch2"),
		workoutAt(now.AddDate(0, 0, -5), 10, 1), // unstamped, never counts
	}
	challenges := []domain.Challenge{
		{ID: "ch1", TargetDays: 7},
		{ID: "ch2", TargetDays: 30},
		{ID: "ch3", TargetDays: 3},
	}
	snap := stats.Derive(workouts, challenges, now, utc)
	if snap.Challenges[0].CurrentDays != 2 {
		t.Fatalf("ch1: expected 2 days, got %d", snap.Challenges[0].CurrentDays)
	}
	if snap.Challenges[1].CurrentDays != 1 {
		t.Fatalf("ch2: expected 1 day, got %d", snap.Challenges[1].CurrentDays)
	}
	if snap.Challenges[2].CurrentDays != 0 {
		t.Fatalf("ch3: expected 0 days, got %d", snap.Challenges[2].CurrentDays)
	}

	counts := stats.ChallengeDayCounts(workouts, utc)
	if counts["ch1"] != 2 || counts["ch2"] != 1 {
		t.Fatalf("unexpected day counts: %v", counts)
	}
}

func TestChallengeDaysIgnoreRejected(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, utc)
	w := challengeWorkout(now, "ch1")
	w.VerificationStatus = domain.StatusRejected
	counts := stats.ChallengeDayCounts([]domain.Workout{w}, utc)
	if counts["ch1"] != 0 {
		t.Fatalf("rejected workout counted toward challenge: %v", counts)
	}
}
