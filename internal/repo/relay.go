package repo

import (
	"context"
	"database/sql"

	"bitfit/internal/domain"
)

const peerCols = `id,peer_name,location,exercise,reps,sets,created_at`

func scanPeer(row rowScanner) (domain.PeerWorkout, error) {
	var p domain.PeerWorkout
	err := row.Scan(&p.ID, &p.PeerName, &p.Location, &p.Exercise, &p.Reps, &p.Sets, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// UpsertPeer inserts a relay entry, ignoring duplicates by id.
func (r Repo) UpsertPeer(ctx context.Context, p domain.PeerWorkout) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO relay_peers(`+peerCols+`) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO NOTHING`,
		p.ID, p.PeerName, p.Location, p.Exercise, p.Reps, p.Sets, p.CreatedAt)
	return err
}

// ListPeers returns relay entries, newest first.
func (r Repo) ListPeers(ctx context.Context) ([]domain.PeerWorkout, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+peerCols+` FROM relay_peers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PeerWorkout
	for rows.Next() {
		p, err := scanPeer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// TrimPeers keeps only the newest max entries.
func (r Repo) TrimPeers(ctx context.Context, max int) error {
	if max <= 0 {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `DELETE FROM relay_peers WHERE id NOT IN (
SELECT id FROM relay_peers ORDER BY created_at DESC, id DESC LIMIT ?)`, max)
	return err
}

func (r Repo) CountPeers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM relay_peers`).Scan(&n)
	return n, err
}

func (r Repo) SumPeerReps(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(sum(reps),0) FROM relay_peers`).Scan(&n)
	return n, err
}

func (r Repo) GetRelayMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM relay_meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

func (r Repo) SetRelayMeta(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO relay_meta(key,value) VALUES (?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}
