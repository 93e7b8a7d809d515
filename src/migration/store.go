package migration

// Store holds one Migration per client currently mid-migration, indexed by
// resume token and by client.
type Store interface {
	// Register inserts a new migration. It fails with TokenCollision if the
	// resume token is taken and with ClientBusy if the client already has a
	// migration; existing records are never overwritten.
	Register(m *Migration) error
	// Update persists changes to a registered migration.
	Update(m *Migration) error
	// ByResumeToken returns the migration with the given resume token, or an
	// UnknownToken error.
	ByResumeToken(token Token) (*Migration, error)
	// ByClient returns the migration of a client, or an UnknownClient error.
	ByClient(client string) (*Migration, error)
	// Remove deletes a migration.
	Remove(m *Migration) error
	// All returns every live migration.
	All() []*Migration
	// Len returns the number of live migrations.
	Len() int
	// Close closes the underlying database, if any.
	Close() error
	// StorePath returns the filepath of the underlying database, if any.
	StorePath() string
}
