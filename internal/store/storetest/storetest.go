// Package storetest 为各组件测试提供基于临时文件的 SQLite 存储。
package storetest

import (
	"path/filepath"
	"testing"
	"time"

	"trading-ledger/internal/config"
	"trading-ledger/internal/store"
)

// New 在 t.TempDir 下创建数据库，测试结束时自动关闭。
func New(t testing.TB) *store.Store {
	t.Helper()

	s, err := store.NewSQLite(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 8,
		BusyTimeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("初始化测试数据库失败: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
