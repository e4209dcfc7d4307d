package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InTransaction reports whether conn is bound to an open transaction.
func InTransaction(conn *gorm.DB) bool {
	if conn == nil || conn.Statement == nil {
		return false
	}
	_, ok := conn.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// ForUpdate adds a row lock on Postgres. sqlite has no row locks and
// serializes writers itself.
func ForUpdate(conn *gorm.DB) *gorm.DB {
	if conn.Dialector.Name() == "postgres" {
		return conn.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return conn
}
