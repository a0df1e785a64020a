package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	coreledger "github.com/kilianp07/gridmarket/core/ledger"
)

// SQLiteStore persists postings in a SQLite database. Postings are keyed by
// ID so replaying a batch inserts nothing twice.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS postings (
        id TEXT PRIMARY KEY,
        type TEXT NOT NULL,
        timeslot INTEGER NOT NULL,
        broker TEXT NOT NULL,
        kind TEXT,
        tariff_id INTEGER,
        customer TEXT,
        count INTEGER,
        quantity REAL,
        price REAL,
        cash REAL,
        posted INTEGER
    );`
	for _, stmt := range []string{schema, `CREATE INDEX IF NOT EXISTS postings_broker ON postings(broker)`} {
		if _, err := db.Exec(stmt); err != nil {
			return nil, closeOnError(db, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func closeOnError(db *sql.DB, err error) error {
	if cerr := db.Close(); cerr != nil {
		return fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
	}
	return err
}

// Append writes the batch in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, postings []coreledger.Posting) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO postings
        (id, type, timeslot, broker, kind, tariff_id, customer, count, quantity, price, cash, posted)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, p := range postings {
		if _, err := stmt.ExecContext(ctx, p.ID, string(p.Type), p.Timeslot, p.Broker, string(p.Kind),
			p.TariffID, p.Customer, p.Count, p.Quantity, p.Price, p.Cash, p.Posted.UnixNano()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Query returns postings matching q in insertion order.
func (s *SQLiteStore) Query(ctx context.Context, q coreledger.Query) ([]coreledger.Posting, error) {
	var args []any
	query := `SELECT id, type, timeslot, broker, kind, tariff_id, customer, count, quantity, price, cash, posted
        FROM postings WHERE 1=1`
	if q.Broker != "" {
		query += ` AND broker = ?`
		args = append(args, q.Broker)
	}
	if q.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(q.Type))
	}
	if q.Timeslot != nil {
		query += ` AND timeslot = ?`
		args = append(args, *q.Timeslot)
	}
	query += ` ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []coreledger.Posting
	for rows.Next() {
		var p coreledger.Posting
		var typ, kind string
		var posted int64
		if err := rows.Scan(&p.ID, &typ, &p.Timeslot, &p.Broker, &kind, &p.TariffID, &p.Customer,
			&p.Count, &p.Quantity, &p.Price, &p.Cash, &posted); err != nil {
			return nil, err
		}
		p.Type = coreledger.PostingType(typ)
		p.Kind = coreledger.TxKind(kind)
		p.Posted = time.Unix(0, posted).UTC()
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
