package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

type TxManagerInterface interface {
	RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) TxManagerInterface {
	return &TxManager{db: db}
}

// RunInTransaction commits when fn returns nil and rolls back on error or panic.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				err = fmt.Errorf("commit transaction: %w", err)
			}
		}
	}()

	err = fn(tx)
	return err
}
