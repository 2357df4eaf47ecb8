package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump flattens an error chain for request logs.
type ErrorDump struct {
	TopMessage string    `json:"top_message"`
	Code       Code      `json:"code,omitempty"`
	Chain      []string  `json:"chain,omitempty"`
	PG         *PGDetail `json:"pg,omitempty"`
	// Hint names the money invariant a tripped constraint guards.
	Hint string `json:"hint,omitempty"`
}

// PGDetail is the driver-neutral part of a Postgres error. Both pgx (gorm's
// driver) and lib/pq errors are recognised.
type PGDetail struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Fields renders d as pg_* log fields. A nil detail yields nil.
func (d *PGDetail) Fields() map[string]any {
	if d == nil {
		return nil
	}
	return map[string]any{
		"pg_code":       d.Code,
		"pg_constraint": d.Constraint,
		"pg_table":      d.Table,
		"pg_column":     d.Column,
		"pg_detail":     d.Detail,
		"pg_message":    d.Message,
	}
}

var constraintHints = map[string]string{
	"profiles_wallet_balance_non_negative":     "wallet balance would go negative",
	"contribution_groups_current_non_negative": "group balance would go negative",
	"contribution_groups_target_positive":      "group target must be positive",
	"contribution_groups_threshold_positive":   "voting threshold must be at least one",
	"contributors_total_non_negative":          "contributor total would go negative",
	"idx_contributors_group_member":            "member already enrolled in group",
	"transactions_amount_non_negative":         "ledger amounts are stored unsigned",
	"transactions_reference_id_key":            "ledger reference already posted",
	"withdrawal_requests_amount_positive":      "withdrawal amount must be positive",
	"group_refund_requests_percentage_range":   "refund percentage outside 1..100",
	"group_refund_requests_eligible_positive":  "refund needs at least one eligible voter",
	"idx_group_refund_requests_one_pending":    "group already has a pending refund",
	"recurring_contributions_amount_positive":  "recurring amount must be positive",
}

// ConstraintHint returns the invariant guarded by a schema constraint, if known.
func ConstraintHint(constraint string) string {
	return constraintHints[constraint]
}

// PostgresDetail finds the first Postgres error in err's chain.
func PostgresDetail(err error) (*PGDetail, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return nil, false
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
	if pg, ok := PostgresDetail(err); ok {
		d.PG = pg
		d.Hint = ConstraintHint(pg.Constraint)
	}
	return d
}
