package repo

import (
	"context"
	"database/sql"
	"errors"

	"bitfit/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const workoutCols = `id,exercise,reps,sets,duration_secs,created_at,photo,self_attested,verification_status,oracle_reason,oracle_confidence,validator_note,submitter,challenge_id,imported`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row rowScanner) (domain.Workout, error) {
	var w domain.Workout
	var duration, confidence sql.NullInt64
	var photo, oracleReason, validatorNote, challengeID sql.NullString
	err := row.Scan(&w.ID, &w.Exercise, &w.Reps, &w.Sets, &duration, &w.CreatedAt, &photo,
		&w.SelfAttested, &w.VerificationStatus, &oracleReason, &confidence, &validatorNote,
		&w.Submitter, &challengeID, &w.Imported)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if duration.Valid {
		v := int(duration.Int64)
		w.DurationSecs = &v
	}
	if confidence.Valid {
		v := int(confidence.Int64)
		w.OracleConfidence = &v
	}
	if photo.Valid {
		w.Photo = &photo.String
	}
	if oracleReason.Valid {
		w.OracleReason = &oracleReason.String
	}
	if validatorNote.Valid {
		w.ValidatorNote = &validatorNote.String
	}
	if challengeID.Valid {
		w.ChallengeID = &challengeID.String
	}
	return w, nil
}

func (r Repo) InsertWorkoutTx(ctx context.Context, tx *sql.Tx, w domain.Workout) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workouts(`+workoutCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.Exercise, w.Reps, w.Sets, nullableIntPtr(w.DurationSecs), w.CreatedAt,
		nullableStringPtr(w.Photo), w.SelfAttested, w.VerificationStatus,
		nullableStringPtr(w.OracleReason), nullableIntPtr(w.OracleConfidence),
		nullableStringPtr(w.ValidatorNote), w.Submitter, nullableStringPtr(w.ChallengeID), w.Imported)
	return err
}

func (r Repo) GetWorkout(ctx context.Context, id string) (domain.Workout, error) {
	return scanWorkout(r.DB.QueryRowContext(ctx, `SELECT `+workoutCols+` FROM workouts WHERE id=?`, id))
}

// ListWorkouts returns the full log, newest first.
func (r Repo) ListWorkouts(ctx context.Context) ([]domain.Workout, error) {
	return r.queryWorkouts(ctx, `SELECT `+workoutCols+` FROM workouts ORDER BY created_at DESC, id DESC`)
}

// ListMempool returns workouts awaiting manual review, oldest first.
func (r Repo) ListMempool(ctx context.Context) ([]domain.Workout, error) {
	return r.queryWorkouts(ctx,
		`SELECT `+workoutCols+` FROM workouts WHERE verification_status IN (?,?) ORDER BY created_at ASC, id ASC`,
		domain.StatusPending, domain.StatusFlagged)
}

func (r Repo) queryWorkouts(ctx context.Context, query string, args ...any) ([]domain.Workout, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) UpdateWorkoutVerificationTx(ctx context.Context, tx *sql.Tx, w domain.Workout) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE workouts SET verification_status=?, oracle_reason=?, oracle_confidence=?, validator_note=? WHERE id=?`,
		w.VerificationStatus, nullableStringPtr(w.OracleReason), nullableIntPtr(w.OracleConfidence),
		nullableStringPtr(w.ValidatorNote), w.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteWorkoutTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM workouts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// WorkoutIDs returns the set of ids already present, for import dedup.
func (r Repo) WorkoutIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM workouts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func nullableStringPtr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
