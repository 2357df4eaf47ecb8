package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeInsufficient, status: http.StatusBadRequest, publicMsg: "insufficient funds", detailsOK: true},
		{code: CodeVoteConflict, status: http.StatusConflict, publicMsg: "request changed while voting, retry", retryable: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, Metadata{
				HTTPStatus:     tt.status,
				Retryable:      tt.retryable,
				PublicMessage:  tt.publicMsg,
				DetailsAllowed: tt.detailsOK,
			}, MetadataFor(tt.code))
		})
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing amount")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing amount", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing amount", base.Error())

	base.WithDetails(map[string]any{"field": "amount"})
	assert.Equal(t, map[string]any{"field": "amount"}, base.Details())

	formatted := Newf(CodeNotFound, "group %s not found", "g-1")
	assert.Equal(t, "group g-1 not found", formatted.Message())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())

	assert.NoError(t, Wrap(CodeConflict, nil, "no cause").Unwrap())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.WithDetails("x"))
	assert.Empty(t, e.Error())
}

func TestAsReturnsTypedError(t *testing.T) {
	got := As(fmt.Errorf("handler: %w", New(CodeForbidden, "not a member")))
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestHasCodeFollowsWrappedChain(t *testing.T) {
	wrapped := fmt.Errorf("contribute: %w", New(CodeInsufficient, "wallet balance too low"))
	assert.True(t, HasCode(wrapped, CodeInsufficient))
	assert.False(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(stdErrors.New("plain"), CodeInternal))
}

func TestStatusAndRetryability(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(New(CodeStateConflict, "refund already closed")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(stdErrors.New("plain")))
	assert.True(t, IsRetryable(New(CodeVoteConflict, "stale tally")))
	assert.True(t, IsRetryable(stdErrors.New("plain")))
	assert.False(t, IsRetryable(New(CodeValidation, "bad amount")))
}

func TestDumpCarriesConstraintHint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "profiles_wallet_balance_non_negative", TableName: "profiles"}
	err := Wrap(CodeInternal, fmt.Errorf("debit wallet: %w", pgErr), "wallet debit failed")

	d := Dump(err)
	assert.Equal(t, CodeInternal, d.Code)
	require.NotNil(t, d.PG)
	assert.Equal(t, "profiles", d.PG.Table)
	assert.Equal(t, "23514", d.PG.Code)
	assert.Equal(t, "profiles", d.PG.Fields()["pg_table"])
	assert.Equal(t, "wallet balance would go negative", d.Hint)
	assert.GreaterOrEqual(t, len(d.Chain), 3)
}

func TestDumpLibPQ(t *testing.T) {
	d := Dump(&pq.Error{Code: "23505", Constraint: "idx_group_refund_requests_one_pending"})
	require.NotNil(t, d.PG)
	assert.Equal(t, "23505", d.PG.Code)
	assert.Equal(t, "group already has a pending refund", d.Hint)
	assert.Empty(t, Dump(nil).TopMessage)
}

func TestDumpWithoutPostgresError(t *testing.T) {
	d := Dump(New(CodeNotFound, "group not found"))
	assert.Nil(t, d.PG)
	assert.Empty(t, d.Hint)
	assert.Nil(t, d.PG.Fields())
	_, ok := PostgresDetail(stdErrors.New("plain"))
	assert.False(t, ok)
}
