// Package state persists runtime policy mutations (tier overrides, pairing
// allow-list and pending requests, autonomy trust signals, approval grants,
// the kill-switch position) in a SQLite database so they survive restarts.
// Load happens once at startup; saves are per-mutation and best effort.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/toolwarden/toolwarden/internal/approval"
	"github.com/toolwarden/toolwarden/internal/autonomy"
	"github.com/toolwarden/toolwarden/internal/pairing"
	"github.com/toolwarden/toolwarden/internal/tier"
)

// schemaVersion is bumped when the schema changes shape; migrations record
// the transition in the audit log through the caller's hook.
const schemaVersion = 1

// Store persists runtime policy state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the state database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// WAL lets the CLI read while a long-running server writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tier_overrides (
		tool_id TEXT PRIMARY KEY,
		tier TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pairing_allowed (
		principal_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS pairing_pending (
		code TEXT PRIMARY KEY,
		principal_id TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		requested_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pairing_pending_expires ON pairing_pending(expires_at);

	CREATE TABLE IF NOT EXISTS autonomy_signals (
		tool_id TEXT PRIMARY KEY,
		trusted INTEGER NOT NULL,
		last_checked INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS approvals (
		tool_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		one_time INTEGER NOT NULL,
		granted_at INTEGER NOT NULL,
		expires_at INTEGER,
		PRIMARY KEY (tool_id, session_id, granted_at)
	);

	CREATE TABLE IF NOT EXISTS killswitch (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		engaged INTEGER NOT NULL,
		reason TEXT DEFAULT '',
		engaged_at INTEGER
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO schema_meta (id, version) VALUES (1, ?)
		 ON CONFLICT(id) DO NOTHING`, schemaVersion)
	return err
}

// Version returns the stored schema version.
func (s *Store) Version() (int, error) {
	var v int
	if err := s.db.QueryRow(`SELECT version FROM schema_meta WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveOverride persists a tier override.
func (s *Store) SaveOverride(toolID string, t tier.DangerTier) error {
	_, err := s.db.Exec(
		`INSERT INTO tier_overrides (tool_id, tier) VALUES (?, ?)
		 ON CONFLICT(tool_id) DO UPDATE SET tier = excluded.tier`,
		toolID, t.String())
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

// DeleteOverride removes a persisted tier override.
func (s *Store) DeleteOverride(toolID string) error {
	if _, err := s.db.Exec(`DELETE FROM tier_overrides WHERE tool_id = ?`, toolID); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}

// Overrides returns all persisted tier overrides. Rows naming a tier that no
// longer parses are skipped rather than failing the whole load.
func (s *Store) Overrides() (map[string]tier.DangerTier, error) {
	rows, err := s.db.Query(`SELECT tool_id, tier FROM tier_overrides`)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tier.DangerTier)
	for rows.Next() {
		var toolID, name string
		if err := rows.Scan(&toolID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		t, err := tier.Parse(name)
		if err != nil {
			continue
		}
		out[toolID] = t
	}
	return out, rows.Err()
}

// SaveAllowedPrincipal persists a pairing allow-list entry.
func (s *Store) SaveAllowedPrincipal(principalID string) error {
	_, err := s.db.Exec(
		`INSERT INTO pairing_allowed (principal_id) VALUES (?)
		 ON CONFLICT(principal_id) DO NOTHING`, principalID)
	if err != nil {
		return fmt.Errorf("failed to save allowed principal: %w", err)
	}
	return nil
}

// DeleteAllowedPrincipal removes a pairing allow-list entry.
func (s *Store) DeleteAllowedPrincipal(principalID string) error {
	if _, err := s.db.Exec(`DELETE FROM pairing_allowed WHERE principal_id = ?`, principalID); err != nil {
		return fmt.Errorf("failed to delete allowed principal: %w", err)
	}
	return nil
}

// AllowedPrincipals returns all persisted allow-list entries.
func (s *Store) AllowedPrincipals() ([]string, error) {
	rows, err := s.db.Query(`SELECT principal_id FROM pairing_allowed ORDER BY principal_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowed principals: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SavePendingRequest persists a live pairing request.
func (s *Store) SavePendingRequest(req pairing.Request) error {
	_, err := s.db.Exec(
		`INSERT INTO pairing_pending (code, principal_id, display_name, requested_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET expires_at = excluded.expires_at`,
		req.Code, req.PrincipalID, req.DisplayName,
		req.RequestedAt.Unix(), req.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save pending request: %w", err)
	}
	return nil
}

// DeletePendingRequest removes a pairing request after approval, denial, or
// expiry.
func (s *Store) DeletePendingRequest(code string) error {
	if _, err := s.db.Exec(`DELETE FROM pairing_pending WHERE code = ?`, code); err != nil {
		return fmt.Errorf("failed to delete pending request: %w", err)
	}
	return nil
}

// PendingRequests returns persisted requests that have not yet expired and
// deletes the rest.
func (s *Store) PendingRequests() ([]pairing.Request, error) {
	now := time.Now().Unix()
	if _, err := s.db.Exec(`DELETE FROM pairing_pending WHERE expires_at <= ?`, now); err != nil {
		return nil, fmt.Errorf("failed to prune pending requests: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT code, principal_id, display_name, requested_at, expires_at
		 FROM pairing_pending ORDER BY requested_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var out []pairing.Request
	for rows.Next() {
		var req pairing.Request
		var requestedAt, expiresAt int64
		if err := rows.Scan(&req.Code, &req.PrincipalID, &req.DisplayName, &requestedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		req.RequestedAt = time.Unix(requestedAt, 0).UTC()
		req.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		out = append(out, req)
	}
	return out, rows.Err()
}

// SaveSignal persists an autonomy trust signal.
func (s *Store) SaveSignal(toolID string, sig autonomy.Signal) error {
	trusted := 0
	if sig.Trusted {
		trusted = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO autonomy_signals (tool_id, trusted, last_checked) VALUES (?, ?, ?)
		 ON CONFLICT(tool_id) DO UPDATE SET trusted = excluded.trusted, last_checked = excluded.last_checked`,
		toolID, trusted, sig.LastChecked.Unix())
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// Signals returns all persisted autonomy trust signals.
func (s *Store) Signals() (map[string]autonomy.Signal, error) {
	rows, err := s.db.Query(`SELECT tool_id, trusted, last_checked FROM autonomy_signals`)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]autonomy.Signal)
	for rows.Next() {
		var toolID string
		var trusted int
		var lastChecked int64
		if err := rows.Scan(&toolID, &trusted, &lastChecked); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out[toolID] = autonomy.Signal{
			Trusted:     trusted != 0,
			LastChecked: time.Unix(lastChecked, 0).UTC(),
		}
	}
	return out, rows.Err()
}

// ReplaceGrants mirrors the full set of live approval grants. Called from
// the approval store's sync hook after every mutation, so consumption of a
// one-time grant is durable too.
func (s *Store) ReplaceGrants(grants []approval.Grant) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to replace grants: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM approvals`); err != nil {
		return fmt.Errorf("failed to replace grants: %w", err)
	}
	for _, g := range grants {
		oneTime := 0
		if g.OneTime {
			oneTime = 1
		}
		var expiresAt any
		if g.ExpiresAt != nil {
			expiresAt = g.ExpiresAt.Unix()
		}
		if _, err := tx.Exec(
			`INSERT INTO approvals (tool_id, session_id, one_time, granted_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
			g.ToolID, g.SessionID, oneTime, g.GrantedAt.Unix(), expiresAt); err != nil {
			return fmt.Errorf("failed to replace grants: %w", err)
		}
	}
	return tx.Commit()
}

// Grants returns all persisted approval grants, expired ones included. The
// approval store drops expired grants on restore.
func (s *Store) Grants() ([]approval.Grant, error) {
	rows, err := s.db.Query(`SELECT tool_id, session_id, one_time, granted_at, expires_at FROM approvals`)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var out []approval.Grant
	for rows.Next() {
		var g approval.Grant
		var oneTime int
		var grantedAt int64
		var expiresAt sql.NullInt64
		if err := rows.Scan(&g.ToolID, &g.SessionID, &oneTime, &grantedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.OneTime = oneTime != 0
		g.GrantedAt = time.Unix(grantedAt, 0).UTC()
		if expiresAt.Valid {
			exp := time.Unix(expiresAt.Int64, 0).UTC()
			g.ExpiresAt = &exp
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SaveKillswitch persists the kill switch position.
func (s *Store) SaveKillswitch(engaged bool, reason string) error {
	eng := 0
	if engaged {
		eng = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO killswitch (id, engaged, reason, engaged_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET engaged = excluded.engaged, reason = excluded.reason, engaged_at = excluded.engaged_at`,
		eng, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save killswitch: %w", err)
	}
	return nil
}

// Killswitch returns the persisted kill switch position. A store that has
// never seen an engage reports disengaged.
func (s *Store) Killswitch() (bool, string, error) {
	var engaged int
	var reason string
	err := s.db.QueryRow(`SELECT engaged, reason FROM killswitch WHERE id = 1`).Scan(&engaged, &reason)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to read killswitch: %w", err)
	}
	return engaged != 0, reason, nil
}

// Restore rehydrates runtime components from persisted state. Call once at
// startup before serving.
func (s *Store) Restore(cl *tier.Classifier, pm *pairing.Manager, ap *autonomy.Policy) error {
	overrides, err := s.Overrides()
	if err != nil {
		return err
	}
	for toolID, t := range overrides {
		cl.SetOverride(toolID, t)
	}

	principals, err := s.AllowedPrincipals()
	if err != nil {
		return err
	}
	for _, id := range principals {
		pm.AllowPrincipal(id)
	}

	pending, err := s.PendingRequests()
	if err != nil {
		return err
	}
	for _, req := range pending {
		pm.Restore(req)
	}

	signals, err := s.Signals()
	if err != nil {
		return err
	}
	for toolID, sig := range signals {
		ap.RestoreSignal(toolID, sig)
	}
	return nil
}
