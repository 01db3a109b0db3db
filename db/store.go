package db

import (
	"context"

	"github.com/pkg/errors"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"gorm.io/gorm"
)

// Store is the SQLite-backed interfaces.Store.
type Store struct {
	repositories
	client *gorm.DB
}

var _ interfaces.Store = (*Store)(nil)

// Begin opens a transaction. Only the returned UnitOfWork may be used until
// it is committed or rolled back: the pool holds a single connection.
func (s *Store) Begin(ctx context.Context) (interfaces.UnitOfWork, error) {
	tx := s.client.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, errors.Wrap(tx.Error, "failed to begin transaction")
	}
	return &unitOfWork{repositories: repositories{db: tx}, tx: tx}, nil
}

// Client returns the internal *gorm.DB instance for direct usage in queries.
func (s *Store) Client() *gorm.DB {
	return s.client
}

// Close safely closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}

type unitOfWork struct {
	repositories
	tx   *gorm.DB
	done bool
}

var errTxFinished = errors.New("transaction already finished")

func (u *unitOfWork) Commit() error {
	if u.done {
		return errTxFinished
	}
	u.done = true
	return errors.Wrap(u.tx.Commit().Error, "failed to commit transaction")
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return errors.Wrap(u.tx.Rollback().Error, "failed to roll back transaction")
}

// repositories implements interfaces.Repositories on a *gorm.DB, which is
// either the root client or an open transaction.
type repositories struct {
	db *gorm.DB
}

func (r *repositories) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}
