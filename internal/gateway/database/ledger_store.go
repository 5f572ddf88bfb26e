package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// LedgerStore journals every applied fill with the position it produced.
type LedgerStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// LedgerEntry is one journaled fill.
type LedgerEntry struct {
	ID                int64   `json:"id"`
	Timestamp         int64   `json:"ts"`
	Symbol            string  `json:"symbol"`
	OrderID           string  `json:"order_id"`
	Side              string  `json:"side"`
	Quantity          float64 `json:"quantity"`
	Price             float64 `json:"price"`
	Cost              float64 `json:"cost"`
	Commission        float64 `json:"commission"`
	Emergency         bool    `json:"emergency"`
	RunState          string  `json:"run_state"`
	QuantityAfter     float64 `json:"quantity_after"`
	FundingAfter      float64 `json:"funding_after"`
	AveragePriceAfter float64 `json:"average_price_after"`
}

type LedgerQuery struct {
	Symbol string
	Limit  int
	Offset int
}

func NewLedgerStore(path string) (*LedgerStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureLedgerSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &LedgerStore{db: db, path: path}, nil
}

func (s *LedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureLedgerSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fill_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			order_id TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL,
			price REAL,
			cost REAL,
			commission REAL,
			emergency INTEGER,
			run_state TEXT,
			quantity_after REAL,
			funding_after REAL,
			average_price_after REAL,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_fill_ledger_symbol ON fill_ledger(symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_fill_ledger_ts ON fill_ledger(ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return addColumnIfMissing(db, "fill_ledger", "run_state", "TEXT")
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()
	exists := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			exists = true
			break
		}
	}
	if exists {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	return err
}

func (s *LedgerStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("ledger store not initialized")
	}
	return s.db, nil
}

func (s *LedgerStore) Insert(ctx context.Context, e LedgerEntry) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()
	ts := e.Timestamp
	if ts == 0 {
		ts = now
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO fill_ledger
			(ts, symbol, order_id, side, quantity, price, cost, commission, emergency,
			 run_state, quantity_after, funding_after, average_price_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts,
		strings.ToUpper(strings.TrimSpace(e.Symbol)),
		e.OrderID,
		e.Side,
		e.Quantity,
		e.Price,
		e.Cost,
		e.Commission,
		boolToInt(e.Emergency),
		e.RunState,
		e.QuantityAfter,
		e.FundingAfter,
		e.AveragePriceAfter,
		now,
	)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// List returns the newest entries first.
func (s *LedgerStore) List(ctx context.Context, q LedgerQuery) ([]LedgerEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	var args []any
	var sb strings.Builder
	sb.WriteString(`SELECT id, ts, symbol, order_id, side, quantity, price, cost, commission,
		emergency, run_state, quantity_after, funding_after, average_price_after
		FROM fill_ledger WHERE 1=1`)
	if sym := strings.TrimSpace(q.Symbol); sym != "" {
		sb.WriteString(" AND symbol=?")
		args = append(args, strings.ToUpper(sym))
	}
	sb.WriteString(" ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)
	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []LedgerEntry
	for rows.Next() {
		var (
			e         LedgerEntry
			emergency sql.NullInt64
			runState  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Symbol, &e.OrderID, &e.Side, &e.Quantity,
			&e.Price, &e.Cost, &e.Commission, &emergency, &runState,
			&e.QuantityAfter, &e.FundingAfter, &e.AveragePriceAfter); err != nil {
			return nil, err
		}
		e.Emergency = emergency.Int64 == 1
		e.RunState = runState.String
		list = append(list, e)
	}
	return list, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
