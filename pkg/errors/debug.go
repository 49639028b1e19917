package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Constraint classes reported for catalog and cart writes.
const (
	ViolationUnique     = "unique"
	ViolationForeignKey = "foreign_key"
	ViolationNotNull    = "not_null"
	ViolationCheck      = "check"
)

// ErrorDump flattens an error chain and any driver detail for request logs.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Violation string `json:"violation,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	SQLiteCode         string `json:"sqlite_code,omitempty"`
	SQLiteExtendedCode string `json:"sqlite_extended_code,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		d.Violation = pgViolation(d.PGCode)
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
		d.Violation = pgViolation(d.PGCode)
	case errors.As(err, &liteErr):
		d.SQLiteCode = liteErr.Code.Error()
		d.SQLiteExtendedCode = liteErr.ExtendedCode.Error()
		d.Violation = sqliteViolation(liteErr.ExtendedCode)
	}
	return d
}

// Fields renders the dump as log fields, leaving out empty driver detail.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	optional := map[string]string{
		"db_violation":         d.Violation,
		"pg_code":              d.PGCode,
		"pg_constraint":        d.PGConstraint,
		"pg_table":             d.PGTable,
		"pg_column":            d.PGColumn,
		"pg_detail":            d.PGDetail,
		"pg_message":           d.PGMessage,
		"sqlite_code":          d.SQLiteCode,
		"sqlite_extended_code": d.SQLiteExtendedCode,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func pgViolation(code string) string {
	switch code {
	case "23505":
		return ViolationUnique
	case "23503":
		return ViolationForeignKey
	case "23502":
		return ViolationNotNull
	case "23514":
		return ViolationCheck
	}
	return ""
}

func sqliteViolation(code sqlite3.ErrNoExtended) string {
	switch code {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return ViolationUnique
	case sqlite3.ErrConstraintForeignKey:
		return ViolationForeignKey
	case sqlite3.ErrConstraintNotNull:
		return ViolationNotNull
	case sqlite3.ErrConstraintCheck:
		return ViolationCheck
	}
	return ""
}
