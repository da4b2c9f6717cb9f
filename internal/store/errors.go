package store

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrDataAccess 表示通用的数据读取或写入失败。
	ErrDataAccess = errors.New("store: 数据访问失败")
	// ErrUnexpectedRows 表示更新影响的行数与预期不符。
	ErrUnexpectedRows = errors.New("store: 影响行数不符合预期")
)

// DataAccessError 携带失败的操作名与底层错误。
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("store: %s失败: %v", e.Op, e.Err)
}

// Unwrap 同时暴露 ErrDataAccess 与底层错误。
func (e *DataAccessError) Unwrap() []error {
	return []error{ErrDataAccess, e.Err}
}

// Wrap 将底层错误包装为 DataAccessError，已包装的错误原样返回。
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return err
	}
	return &DataAccessError{Op: op, Err: err}
}

// ExpectOneRow 校验写操作恰好影响一行。
func ExpectOneRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return Wrap(op, err)
	}
	if n != 1 {
		return Wrap(op, fmt.Errorf("%w: 期望 1 行，实际 %d 行", ErrUnexpectedRows, n))
	}
	return nil
}
