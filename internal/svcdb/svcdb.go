// Package svcdb is a minimal service/scan-history index kept only to give
// chdb's on_mux_key_change hook a real referencing store to rekey: spec.md
// scopes the full service/EPG database out, but the hook it exercises
// ("update any records referencing the old key", spec §4.C step 4) needs
// something concrete behind it. Modeled on the teacher's internal/plex/dvr.go,
// which opens a database/sql handle over modernc.org/sqlite to rewrite a
// foreign key when Plex's own identifiers change — the same shape of
// problem, applied to our own schema instead of Plex's.
package svcdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/neumodvb/devcore/internal/chdb"
)

// Index is a handle to the service/scan-history sqlite database.
type Index struct {
	db *sql.DB
}

// Open creates (if absent) and opens the index at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("svcdb: open %q: %w", path, err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sat_pos INTEGER NOT NULL,
			network_id INTEGER NOT NULL,
			ts_id INTEGER NOT NULL,
			t2mi_pid INTEGER NOT NULL,
			extra_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS services_mux_key ON services(sat_pos, network_id, ts_id, t2mi_pid, extra_id)`,
		`CREATE TABLE IF NOT EXISTS scan_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sat_pos INTEGER NOT NULL,
			network_id INTEGER NOT NULL,
			ts_id INTEGER NOT NULL,
			t2mi_pid INTEGER NOT NULL,
			extra_id INTEGER NOT NULL,
			scanned_at INTEGER NOT NULL,
			result INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS scan_history_mux_key ON scan_history(sat_pos, network_id, ts_id, t2mi_pid, extra_id)`,
	}
	for _, s := range stmts {
		if _, err := idx.db.Exec(s); err != nil {
			return fmt.Errorf("svcdb: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying handle.
func (idx *Index) Close() error { return idx.db.Close() }

// OnMuxKeyChange rewrites every services/scan_history row referencing old
// to reference new instead, inside one SQL transaction — the concrete
// implementation of chdb's on_mux_key_change hook (spec §4.C step 4).
func (idx *Index) OnMuxKeyChange(old, new chdb.MuxKey) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("svcdb: begin: %w", err)
	}
	defer tx.Rollback()

	const where = `WHERE sat_pos = ? AND network_id = ? AND ts_id = ? AND t2mi_pid = ? AND extra_id = ?`
	oldArgs := []any{old.SatPos, old.NetworkID, old.TSID, old.T2MIPID, old.ExtraID}

	if _, err := tx.Exec(
		`UPDATE services SET sat_pos=?, network_id=?, ts_id=?, t2mi_pid=?, extra_id=? `+where,
		append([]any{new.SatPos, new.NetworkID, new.TSID, new.T2MIPID, new.ExtraID}, oldArgs...)...,
	); err != nil {
		return fmt.Errorf("svcdb: rekey services: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE scan_history SET sat_pos=?, network_id=?, ts_id=?, t2mi_pid=?, extra_id=? `+where,
		append([]any{new.SatPos, new.NetworkID, new.TSID, new.T2MIPID, new.ExtraID}, oldArgs...)...,
	); err != nil {
		return fmt.Errorf("svcdb: rekey scan_history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("svcdb: commit rekey: %w", err)
	}
	return nil
}

// RecordService inserts a row caching the name of a service under mux. An
// existing row for the same service is not updated; each call adds a row.
func (idx *Index) RecordService(mux chdb.MuxKey, serviceID uint16, name string) error {
	_, err := idx.db.Exec(
		`INSERT INTO services (sat_pos, network_id, ts_id, t2mi_pid, extra_id, service_id, name)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mux.SatPos, mux.NetworkID, mux.TSID, mux.T2MIPID, mux.ExtraID, serviceID, name,
	)
	if err != nil {
		return fmt.Errorf("svcdb: record service: %w", err)
	}
	return nil
}

// RecordScan appends a scan-history row for mux.
func (idx *Index) RecordScan(mux chdb.MuxKey, scannedAt int64, result int) error {
	_, err := idx.db.Exec(
		`INSERT INTO scan_history (sat_pos, network_id, ts_id, t2mi_pid, extra_id, scanned_at, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mux.SatPos, mux.NetworkID, mux.TSID, mux.T2MIPID, mux.ExtraID, scannedAt, result,
	)
	if err != nil {
		return fmt.Errorf("svcdb: record scan: %w", err)
	}
	return nil
}
