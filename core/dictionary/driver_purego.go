//go:build !cgo_sqlite

package dictionary

import (
	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	driverType = "purego"
)
