package db

import "time"

func (db *DB) SetNow(now func() time.Time) {
	db.now = now
}
