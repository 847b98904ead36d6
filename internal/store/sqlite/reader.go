package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"marketviz/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for startup backfill.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for one series after a timestamp, ordered ascending
// so replay into the series store preserves history order.
func (r *Reader) ReadBars(symbol string, tf int, afterTS int64) ([]model.StreamBar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.StreamBar
	for rows.Next() {
		var b model.StreamBar
		var tsUnix int64
		if err := rows.Scan(&b.Symbol, &b.TF, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists the distinct (symbol, tf) pairs with stored bars.
func (r *Reader) Symbols() ([]model.SeriesRef, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol, tf FROM bars ORDER BY symbol, tf`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var refs []model.SeriesRef
	for rows.Next() {
		var ref model.SeriesRef
		if err := rows.Scan(&ref.Symbol, &ref.TF); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
