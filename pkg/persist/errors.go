package persist

import "errors"

var (
	ErrOpenDB    = errors.New("persist: open database")
	ErrMigrate   = errors.New("persist: apply migration")
	ErrStoreSave = errors.New("persist: save rules")
	ErrStoreRead = errors.New("persist: read rules")
)
