package repo

import (
	"context"
	"database/sql"

	"bitfit/internal/domain"
)

const challengeCols = `id,title,description,target_days,current_days,joined,start_date,creator,category,reward_sats,recurrence,status,payout_proof_url,created_at`

func scanChallenge(row rowScanner) (domain.Challenge, error) {
	var c domain.Challenge
	var desc, startDate, creator, proofURL sql.NullString
	var rewardSats sql.NullInt64
	err := row.Scan(&c.ID, &c.Title, &desc, &c.TargetDays, &c.CurrentDays, &c.Joined,
		&startDate, &creator, &c.Category, &rewardSats, &c.Recurrence, &c.Status, &proofURL, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if desc.Valid {
		c.Description = desc.String
	}
	if startDate.Valid {
		c.StartDate = &startDate.String
	}
	if creator.Valid {
		c.Creator = &creator.String
	}
	if rewardSats.Valid {
		v := int(rewardSats.Int64)
		c.RewardSats = &v
	}
	if proofURL.Valid {
		c.PayoutProofURL = &proofURL.String
	}
	return c, nil
}

func (r Repo) InsertChallengeTx(ctx context.Context, tx *sql.Tx, c domain.Challenge) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO challenges(`+challengeCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Title, nullableString(c.Description), c.TargetDays, c.CurrentDays, c.Joined,
		nullableStringPtr(c.StartDate), nullableStringPtr(c.Creator), c.Category,
		nullableIntPtr(c.RewardSats), c.Recurrence, c.Status, nullableStringPtr(c.PayoutProofURL), c.CreatedAt)
	return err
}

func (r Repo) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	return scanChallenge(r.DB.QueryRowContext(ctx, `SELECT `+challengeCols+` FROM challenges WHERE id=?`, id))
}

// ListChallenges returns challenges in creation order. The order is the
// deterministic tie-break for challenge stamping on submission.
func (r Repo) ListChallenges(ctx context.Context) ([]domain.Challenge, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+challengeCols+` FROM challenges ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateChallengeTx(ctx context.Context, tx *sql.Tx, c domain.Challenge) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE challenges SET joined=?, start_date=?, status=?, payout_proof_url=?, current_days=? WHERE id=?`,
		c.Joined, nullableStringPtr(c.StartDate), c.Status, nullableStringPtr(c.PayoutProofURL), c.CurrentDays, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshChallengeDays writes derived current_days back onto the rows so
// listings stay consistent without recomputing in every reader.
func (r Repo) RefreshChallengeDays(ctx context.Context, days map[string]int) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for id, n := range days {
		if _, err := tx.ExecContext(ctx, `UPDATE challenges SET current_days=? WHERE id=?`, n, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
