package auth

import (
	"context"
	"database/sql"
	"log"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes the SQL backed stores
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx RepositoryManager) error) error
	Users() *UsersRepository
	Revocations() *RevocationsRepository
}

type mngr struct {
	db          bun.IDB
	users       *UsersRepository
	revocations *RevocationsRepository
}

// NewRepositoryManager builds the stores on top of db
func NewRepositoryManager(db bun.IDB) RepositoryManager {
	return &mngr{
		db:          db,
		users:       NewUsersRepository(db),
		revocations: NewRevocationsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized", errors.CategoryInternal)
	}

	if m.revocations == nil {
		return errors.New("repository revocations should be initialized", errors.CategoryInternal)
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f with stores bound to a single transaction
func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx RepositoryManager) error) error {
	select {
	case <-ctx.Done():
		return ctxError(ctx, "context cancelled before transaction")
	default:
		return m.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
			return f(ctx, NewRepositoryManager(tx))
		})
	}
}

func (m mngr) Users() *UsersRepository {
	return m.users
}

func (m mngr) Revocations() *RevocationsRepository {
	return m.revocations
}
