package store

import "fmt"

// 金额与价格以十进制文本保存，避免浮点误差。
var schema = []string{
	`CREATE TABLE IF NOT EXISTS trader (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		dob TEXT NOT NULL,
		country TEXT NOT NULL,
		email TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trader_id INTEGER NOT NULL UNIQUE REFERENCES trader(id),
		amount TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS quote (
		ticker TEXT PRIMARY KEY,
		last_price TEXT NOT NULL,
		bid_price TEXT NOT NULL,
		bid_size INTEGER NOT NULL,
		ask_price TEXT NOT NULL,
		ask_size INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS security_order (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES account(id),
		ticker TEXT NOT NULL REFERENCES quote(ticker),
		size INTEGER NOT NULL CHECK (size <> 0),
		price TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('FILLED', 'CANCELED')),
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_security_order_account ON security_order(account_id, ticker);`,
	`CREATE VIEW IF NOT EXISTS position AS
		SELECT account_id, ticker, SUM(size) AS position
		FROM security_order
		WHERE status = 'FILLED'
		GROUP BY account_id, ticker;`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: 初始化表结构失败: %w", err)
		}
	}
	return nil
}
