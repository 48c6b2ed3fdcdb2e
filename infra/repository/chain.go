package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/amirasaad/topupledger/pkg/domain"
	"gorm.io/gorm"
)

// ChainSnapshot streams the transaction chain for verification. On Postgres
// the scan runs in a read-only REPEATABLE READ transaction so concurrent
// appends are invisible to it.
type ChainSnapshot struct {
	db *gorm.DB
}

// NewChainSnapshot returns a hashchain.Source over db.
func NewChainSnapshot(db *gorm.DB) *ChainSnapshot {
	return &ChainSnapshot{db: db}
}

// ScanChain calls fn for every transaction in chain_seq order.
func (s *ChainSnapshot) ScanChain(ctx context.Context, fn func(t *domain.Transaction) error) error {
	var opts []*sql.TxOptions
	if s.db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := tx.Model(&Transaction{}).Order("chain_seq ASC").Rows()
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck

		for rows.Next() {
			var m Transaction
			if err := tx.ScanRows(rows, &m); err != nil {
				return err
			}
			if err := fn(transactionFromModel(&m)); err != nil {
				return err
			}
		}
		return rows.Err()
	}, opts...)
	if err != nil {
		return fmt.Errorf("scan chain: %w", err)
	}
	return nil
}
