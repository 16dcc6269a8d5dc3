// Package store persists everything that must survive a restart: the
// open position book, the trade-record history the learner trains on,
// the active model and the decision audit trail. SQLite in WAL mode,
// migrated on open.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/types"
)

// Store is the engine's SQLite persistence layer. Safe for concurrent
// use; writes serialize through a mutex.
type Store struct {
	db  *sql.DB
	log logger.Logger
	mu  sync.Mutex
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so the decision path never blocks behind a reader.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("store opened", logger.String("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id                  TEXT PRIMARY KEY,
			symbol              TEXT NOT NULL UNIQUE,
			entry_price         REAL NOT NULL,
			entry_time          INTEGER NOT NULL,
			original_amount     REAL NOT NULL,
			remaining_amount    REAL NOT NULL,
			sold_tp1            REAL NOT NULL DEFAULT 0,
			sold_tp2            REAL NOT NULL DEFAULT 0,
			sold_tp3            REAL NOT NULL DEFAULT 0,
			sold_exit           REAL NOT NULL DEFAULT 0,
			stop_loss_pct       REAL NOT NULL,
			stop_loss_price     REAL NOT NULL,
			trailing_active     INTEGER NOT NULL DEFAULT 0,
			trailing_stop_price REAL NOT NULL DEFAULT 0,
			tp1_hit             INTEGER NOT NULL DEFAULT 0,
			tp2_hit             INTEGER NOT NULL DEFAULT 0,
			tp3_hit             INTEGER NOT NULL DEFAULT 0,
			stale_flagged       INTEGER NOT NULL DEFAULT 0,
			features            TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS trade_records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT NOT NULL,
			entry_time  INTEGER NOT NULL,
			exit_time   INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price  REAL NOT NULL,
			pnl_percent REAL NOT NULL,
			win         INTEGER NOT NULL,
			exit_reason TEXT NOT NULL,
			features    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exit ON trade_records(exit_time)`,

		`CREATE TABLE IF NOT EXISTS model (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			blob       TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp       INTEGER NOT NULL,
			symbol          TEXT NOT NULL,
			signal_type     TEXT NOT NULL,
			score           REAL NOT NULL,
			approved        INTEGER NOT NULL,
			reason          TEXT NOT NULL,
			confidence      REAL NOT NULL,
			confidence_used INTEGER NOT NULL,
			notes           TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			head := stmt
			if i := strings.IndexByte(head, '('); i > 0 {
				head = strings.TrimSpace(head[:i])
			}
			return fmt.Errorf("exec %q: %w", head, err)
		}
	}
	return nil
}

// SavePosition upserts the open position keyed by symbol. Called after
// every lifecycle mutation so the book is always current on disk.
func (s *Store) SavePosition(p *types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO positions
		(id, symbol, entry_price, entry_time, original_amount, remaining_amount,
		 sold_tp1, sold_tp2, sold_tp3, sold_exit,
		 stop_loss_pct, stop_loss_price, trailing_active, trailing_stop_price,
		 tp1_hit, tp2_hit, tp3_hit, stale_flagged, features)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol) DO UPDATE SET
			remaining_amount=excluded.remaining_amount,
			sold_tp1=excluded.sold_tp1,
			sold_tp2=excluded.sold_tp2,
			sold_tp3=excluded.sold_tp3,
			sold_exit=excluded.sold_exit,
			trailing_active=excluded.trailing_active,
			trailing_stop_price=excluded.trailing_stop_price,
			tp1_hit=excluded.tp1_hit,
			tp2_hit=excluded.tp2_hit,
			tp3_hit=excluded.tp3_hit,
			stale_flagged=excluded.stale_flagged`,
		p.ID, p.Symbol, p.EntryPrice, p.EntryTime.Unix(),
		p.OriginalAmount, p.RemainingAmount,
		p.SoldTP1, p.SoldTP2, p.SoldTP3, p.SoldExit,
		p.StopLossPct, p.StopLossPrice,
		boolInt(p.TrailingActive), p.TrailingStopPrice,
		boolInt(p.TP1Hit), boolInt(p.TP2Hit), boolInt(p.TP3Hit),
		boolInt(p.StaleFlagged), string(features),
	)
	return err
}

// DeletePosition removes a closed position from the book.
func (s *Store) DeletePosition(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM positions WHERE symbol = ?`, symbol)
	return err
}

// LoadPositions returns the persisted open position book.
func (s *Store) LoadPositions() ([]*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT
		id, symbol, entry_price, entry_time, original_amount, remaining_amount,
		sold_tp1, sold_tp2, sold_tp3, sold_exit,
		stop_loss_pct, stop_loss_price, trailing_active, trailing_stop_price,
		tp1_hit, tp2_hit, tp3_hit, stale_flagged, features
		FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var book []*types.Position
	for rows.Next() {
		var (
			p                              types.Position
			entryUnix                      int64
			trailing, tp1, tp2, tp3, stale int
			featuresJSON                   string
		)
		if err := rows.Scan(
			&p.ID, &p.Symbol, &p.EntryPrice, &entryUnix,
			&p.OriginalAmount, &p.RemainingAmount,
			&p.SoldTP1, &p.SoldTP2, &p.SoldTP3, &p.SoldExit,
			&p.StopLossPct, &p.StopLossPrice, &trailing, &p.TrailingStopPrice,
			&tp1, &tp2, &tp3, &stale, &featuresJSON,
		); err != nil {
			return nil, err
		}
		p.EntryTime = time.Unix(entryUnix, 0).UTC()
		p.TrailingActive = trailing != 0
		p.TP1Hit, p.TP2Hit, p.TP3Hit = tp1 != 0, tp2 != 0, tp3 != 0
		p.StaleFlagged = stale != 0
		p.Status = types.PositionOpen
		if err := json.Unmarshal([]byte(featuresJSON), &p.Features); err != nil {
			return nil, fmt.Errorf("corrupt features for %s: %w", p.Symbol, err)
		}
		book = append(book, &p)
	}
	return book, rows.Err()
}

// AppendTradeRecord appends one completed trade to the history.
func (s *Store) AppendTradeRecord(r types.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	features, err := json.Marshal(r.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO trade_records
		(symbol, entry_time, exit_time, entry_price, exit_price, pnl_percent, win, exit_reason, features)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		r.Symbol, r.EntryTime.Unix(), r.ExitTime.Unix(),
		r.EntryPrice, r.ExitPrice, r.PnLPercent,
		boolInt(r.Win), string(r.ExitReason), string(features),
	)
	return err
}

// LoadTradeRecords returns the full trade history, oldest exit first,
// which is the order the learner's holdout split depends on.
func (s *Store) LoadTradeRecords() ([]types.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT
		symbol, entry_time, exit_time, entry_price, exit_price, pnl_percent, win, exit_reason, features
		FROM trade_records ORDER BY exit_time ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.TradeRecord
	for rows.Next() {
		var (
			r                    types.TradeRecord
			entryUnix, exitUnix  int64
			win                  int
			reason, featuresJSON string
		)
		if err := rows.Scan(&r.Symbol, &entryUnix, &exitUnix,
			&r.EntryPrice, &r.ExitPrice, &r.PnLPercent, &win, &reason, &featuresJSON); err != nil {
			return nil, err
		}
		r.EntryTime = time.Unix(entryUnix, 0).UTC()
		r.ExitTime = time.Unix(exitUnix, 0).UTC()
		r.Win = win != 0
		r.ExitReason = types.ExitReason(reason)
		if err := json.Unmarshal([]byte(featuresJSON), &r.Features); err != nil {
			return nil, fmt.Errorf("corrupt features in trade history: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveModel stores the active confidence model as an opaque blob.
func (s *Store) SaveModel(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO model (id, blob, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET blob=excluded.blob, updated_at=excluded.updated_at`,
		string(blob), time.Now().Unix())
	return err
}

// LoadModel returns the persisted model blob, or nil when none exists.
func (s *Store) LoadModel() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob string
	err := s.db.QueryRow(`SELECT blob FROM model WHERE id = 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

// RecordDecision appends a gate decision to the audit trail.
func (s *Store) RecordDecision(d types.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := json.Marshal(d.Notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO decisions
		(timestamp, symbol, signal_type, score, approved, reason, confidence, confidence_used, notes)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		d.Signal.Time.Unix(), d.Signal.Symbol, string(d.Signal.Type), d.Signal.Score,
		boolInt(d.Approved), d.Reason, d.Confidence, boolInt(d.ConfidenceUsed), string(notes),
	)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	s.log.Info("closing store")
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
