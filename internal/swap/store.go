package swap

import "context"

// AccountStore persists account records.
// Get, Update and Delete return an error matching ErrAccountNotFound for unknown IDs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) (*Account, error)
	GetAccount(ctx context.Context, id int64) (*Account, error)
	FindAccountByName(ctx context.Context, name string) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error
	DeleteAccount(ctx context.Context, id int64) error
}

// ActivityLog is the append-only, user-visible log sink.
// The engine records an entry after every significant step; it does not own
// the storage format.
type ActivityLog interface {
	Record(ctx context.Context, entry *ActivityEntry) error
	Recent(ctx context.Context, limit int) ([]*ActivityEntry, error)
}
