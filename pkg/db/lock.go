package db

import "gorm.io/gorm"

// ForUpdate returns the row lock suffix for raw SELECT statements. SQLite
// has no row locks; writers are serialized by the database lock instead.
func ForUpdate(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return " FOR UPDATE"
	}
	if conn.Dialector.Name() == TypeSQLite {
		return ""
	}
	return " FOR UPDATE"
}
