package guard

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteApprovalArchive stores resolved approval requests (approved,
// rejected, or expired). The pending set never touches the database; the
// archive exists so operators can review past decisions.
type SQLiteApprovalArchive struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteApprovalArchive(dsn string) (*SQLiteApprovalArchive, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	a := &SQLiteApprovalArchive{dsn: dsn}
	if err := a.open(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SQLiteApprovalArchive) Record(ctx context.Context, req ApprovalRequest) error {
	if a == nil {
		return fmt.Errorf("nil approval archive")
	}
	if err := a.ensureOpen(); err != nil {
		return err
	}

	paramsJSON, _ := json.Marshal(req.Params)
	originJSON, _ := json.Marshal(req.RequestedFrom)

	_, err := a.db.ExecContext(ctx, `
INSERT OR REPLACE INTO approval_archive (
  id, tool, params_json, permission_tier, reason,
  requested_at_unix, expires_at_unix, responded_at_unix,
  status, responded_by, origin_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, req.ID, strings.TrimSpace(req.Tool), string(paramsJSON), string(req.PermissionTier), strings.TrimSpace(req.Reason),
		req.RequestedAt.Unix(), req.ExpiresAt.Unix(), nullTimeUnix(req.RespondedAt),
		string(req.Status), strings.TrimSpace(req.RespondedBy), string(originJSON),
	)
	return err
}

// Recent returns up to limit archived requests, newest first.
func (a *SQLiteApprovalArchive) Recent(ctx context.Context, limit int) ([]ApprovalRequest, error) {
	if a == nil {
		return nil, fmt.Errorf("nil approval archive")
	}
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx, `
SELECT id, tool, params_json, permission_tier, reason,
       requested_at_unix, expires_at_unix, responded_at_unix,
       status, responded_by, origin_json
FROM approval_archive
ORDER BY requested_at_unix DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		var (
			req             ApprovalRequest
			paramsJSON      string
			tier            string
			requestedAtUnix int64
			expiresAtUnix   int64
			respondedAtUnix sql.NullInt64
			status          string
			originJSON      string
		)
		if err := rows.Scan(
			&req.ID, &req.Tool, &paramsJSON, &tier, &req.Reason,
			&requestedAtUnix, &expiresAtUnix, &respondedAtUnix,
			&status, &req.RespondedBy, &originJSON,
		); err != nil {
			return nil, err
		}
		req.PermissionTier = PermissionTier(tier)
		req.Status = ApprovalStatus(status)
		req.RequestedAt = time.Unix(requestedAtUnix, 0).UTC()
		req.ExpiresAt = time.Unix(expiresAtUnix, 0).UTC()
		if respondedAtUnix.Valid {
			t := time.Unix(respondedAtUnix.Int64, 0).UTC()
			req.RespondedAt = &t
		}
		_ = json.Unmarshal([]byte(paramsJSON), &req.Params)
		_ = json.Unmarshal([]byte(originJSON), &req.RequestedFrom)
		out = append(out, req)
	}
	return out, rows.Err()
}

func (a *SQLiteApprovalArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *SQLiteApprovalArchive) open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", a.dsn)
	if err != nil {
		return err
	}
	a.db = db
	return a.migrate()
}

func (a *SQLiteApprovalArchive) ensureOpen() error {
	if a.db != nil {
		return nil
	}
	return a.open()
}

func (a *SQLiteApprovalArchive) migrate() error {
	if a.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := a.db.Exec(`
CREATE TABLE IF NOT EXISTS approval_archive (
  id TEXT PRIMARY KEY,
  tool TEXT,
  params_json TEXT,
  permission_tier TEXT,
  reason TEXT,
  requested_at_unix INTEGER NOT NULL,
  expires_at_unix INTEGER NOT NULL,
  responded_at_unix INTEGER,
  status TEXT NOT NULL,
  responded_by TEXT,
  origin_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_approval_archive_status ON approval_archive(status);
`)
	return err
}

func randHex(nbytes int) string {
	if nbytes <= 0 {
		nbytes = 12
	}
	b := make([]byte, nbytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func nullTimeUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Unix()
}
