package kvcore

// newTestDatabase builds a single-database Database with defaults applied,
// no secondary store, for use across the command/executor test files.
func newTestDatabase() *Database {
	cfg := DefaultConfig()
	cfg.Databases = 1
	return NewDatabase(cfg, nil, NewNopLogger())
}

func newTestDispatcher() (*Dispatcher, *Database, *ClientState) {
	db := newTestDatabase()
	d := NewDispatcher(db)
	return d, db, NewClientState()
}
