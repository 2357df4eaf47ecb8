package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kolo-backend/pkg/db"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

const referenceConstraint = "transactions_reference_id_key"

// ErrDuplicateReference is returned when a reference was already recorded.
var ErrDuplicateReference = pkgerrors.New(pkgerrors.CodeConflict, "transaction reference already recorded")

// Service exposes ledger reads. Writes go through Record inside the caller's
// transaction.
type Service interface {
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) (*TransactionList, error)
	ListForGroup(ctx context.Context, groupID uuid.UUID, params ListParams) (*TransactionList, error)
	HasContributed(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
}

// ListParams narrows a ledger page.
type ListParams struct {
	pagination.Params
	Type *enums.TransactionType
}

// TransactionList is a page of ledger rows.
type TransactionList struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// RecordInput captures the immutable data a ledger row requires.
type RecordInput struct {
	UserID      *uuid.UUID
	GroupID     *uuid.UUID
	Type        enums.TransactionType
	Amount      decimal.Decimal
	Status      enums.TransactionStatus
	Reference   string
	Provider    string
	Description string
	Metadata    dbtypes.JSON
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger repository required")
	}
	return &service{repo: repo}, nil
}

// Record validates and inserts a ledger row. A reference that already exists
// yields ErrDuplicateReference.
func Record(ctx context.Context, repo Repository, input RecordInput) (*models.Transaction, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction status")
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}

	txn := &models.Transaction{
		UserID:      input.UserID,
		GroupID:     input.GroupID,
		Type:        input.Type,
		Amount:      input.Amount.Round(2),
		Status:      input.Status,
		ReferenceID: optional(input.Reference),
		Provider:    optional(input.Provider),
		Description: optional(input.Description),
		Metadata:    input.Metadata,
	}
	if err := repo.Create(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, referenceConstraint) {
			return nil, ErrDuplicateReference
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}
	return txn, nil
}

func (s *service) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	txn, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return txn, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) (*TransactionList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, listParams{UserID: &userID, Type: params.Type, Limit: params.Limit}, params.Cursor)
}

func (s *service) ListForGroup(ctx context.Context, groupID uuid.UUID, params ListParams) (*TransactionList, error) {
	if groupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	return s.list(ctx, listParams{GroupID: &groupID, Type: params.Type, Limit: params.Limit}, params.Cursor)
}

func (s *service) list(ctx context.Context, params listParams, rawCursor string) (*TransactionList, error) {
	if params.Type != nil && !params.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	cursor, err := pagination.ParseCursor(rawCursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Cursor = cursor

	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	out := &TransactionList{Transactions: rows}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

func (s *service) HasContributed(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	if groupID == uuid.Nil || userID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "group and user ids required")
	}
	ok, err := s.repo.HasCompletedContribution(ctx, groupID, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan contributions")
	}
	return ok, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
