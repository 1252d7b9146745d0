// Package stats derives streaks, totals and challenge progress from the
// workout log. Everything here is pure: no I/O, no mutation of inputs, and
// the same inputs always produce the same snapshot.
package stats

import (
	"sort"
	"time"

	"bitfit/internal/domain"
)

const dayFormat = "2006-01-02"

// Snapshot is the derived view over the current collections.
type Snapshot struct {
	Stats domain.UserStats
	// Challenges are copies of the input challenges with CurrentDays set.
	Challenges []domain.Challenge
}

// Derive folds the workout log into user stats and per-challenge progress.
// Rejected workouts never contribute; day bucketing is by calendar day in
// loc, not by 24h windows.
func Derive(workouts []domain.Workout, challenges []domain.Challenge, now time.Time, loc *time.Location) Snapshot {
	if loc == nil {
		loc = time.Local
	}

	var totalReps, totalSets int
	daySet := map[string]bool{}
	challengeDays := map[string]map[string]bool{}

	for _, w := range workouts {
		if w.VerificationStatus == domain.StatusRejected {
			continue
		}
		totalReps += w.Reps
		totalSets += w.Sets
		day, ok := workoutDay(w, loc)
		if !ok {
			continue
		}
		daySet[day] = true
		if w.ChallengeID != nil && *w.ChallengeID != "" {
			set := challengeDays[*w.ChallengeID]
			if set == nil {
				set = map[string]bool{}
				challengeDays[*w.ChallengeID] = set
			}
			set[day] = true
		}
	}

	snap := Snapshot{
		Stats: domain.UserStats{
			TotalReps: totalReps,
			TotalSets: totalSets,
		},
	}

	days := make([]string, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Strings(days)

	if len(days) > 0 {
		lastDay := days[len(days)-1]
		snap.Stats.LastActivityDate = lastDay
		today := now.In(loc).Format(dayFormat)
		yesterday := now.In(loc).AddDate(0, 0, -1).Format(dayFormat)
		if lastDay == today || lastDay == yesterday {
			snap.Stats.Streak = streakEndingAt(days, loc)
		}
	}

	snap.Challenges = make([]domain.Challenge, len(challenges))
	for i, c := range challenges {
		c.CurrentDays = len(challengeDays[c.ID])
		snap.Challenges[i] = c
	}
	return snap
}

// ChallengeDayCounts returns only the per-challenge distinct-day counts.
func ChallengeDayCounts(workouts []domain.Workout, loc *time.Location) map[string]int {
	if loc == nil {
		loc = time.Local
	}
	sets := map[string]map[string]bool{}
	for _, w := range workouts {
		if w.VerificationStatus == domain.StatusRejected || w.ChallengeID == nil || *w.ChallengeID == "" {
			continue
		}
		day, ok := workoutDay(w, loc)
		if !ok {
			continue
		}
		set := sets[*w.ChallengeID]
		if set == nil {
			set = map[string]bool{}
			sets[*w.ChallengeID] = set
		}
		set[day] = true
	}
	counts := make(map[string]int, len(sets))
	for id, set := range sets {
		counts[id] = len(set)
	}
	return counts
}

// streakEndingAt walks backward from the most recent day through the sorted
// distinct-day list, counting contiguous calendar days.
func streakEndingAt(sortedDays []string, loc *time.Location) int {
	streak := 1
	for i := len(sortedDays) - 1; i > 0; i-- {
		cur, err := time.ParseInLocation(dayFormat, sortedDays[i], loc)
		if err != nil {
			break
		}
		if cur.AddDate(0, 0, -1).Format(dayFormat) != sortedDays[i-1] {
			break
		}
		streak++
	}
	return streak
}

func workoutDay(w domain.Workout, loc *time.Location) (string, bool) {
	t, err := time.Parse(time.RFC3339, w.CreatedAt)
	if err != nil {
		return "", false
	}
	return t.In(loc).Format(dayFormat), true
}
