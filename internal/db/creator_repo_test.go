package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subledger/internal/types"
)

func TestCreatorRepo_AdjustSubscribers_Increment(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.AdjustSubscribers(context.Background(), "creator_1", 1)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestCreatorRepo_AdjustSubscribers_ClampLivesInSQL(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	var executed string
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { executed = args.String(1) }).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.AdjustSubscribers(context.Background(), "creator_1", -1)
	require.NoError(t, err)

	// The zero floor must be in the statement itself so concurrent decrements
	// cannot race the counter below zero in application code.
	assert.Contains(t, executed, "GREATEST(subscriber_count + $2, 0)")
}

func TestCreatorRepo_AdjustSubscribers_CreatorNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.AdjustSubscribers(context.Background(), "creator_missing", -1)
	require.Error(t, err)

	// A missing creator row surfaces as a retryable handler failure, not a
	// 404, so the webhook response stays within the 200/400/5xx contract.
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeHandlerFailure, appErr.Code)
}

func TestCreatorRepo_AdjustSubscribers_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("timeout"))

	err := repo.AdjustSubscribers(context.Background(), "creator_1", -1)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestCreatorRepo_FindCreatorByAccountID_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "creator_1"
				return nil
			},
		})

	id, err := repo.FindCreatorByAccountID(context.Background(), "acct_1")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "creator_1", *id)
}

func TestCreatorRepo_FindCreatorByAccountID_NotFoundIsNil(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	id, err := repo.FindCreatorByAccountID(context.Background(), "acct_unknown")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestCreatorRepo_FindCreatorByAccountID_EmptyIDShortCircuits(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	// No query should be issued for an empty account ID.
	id, err := repo.FindCreatorByAccountID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, id)
	db.AssertNotCalled(t, "QueryRow")
}

func TestCreatorRepo_FindFanByCustomerID_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "fan_1"
				return nil
			},
		})

	id, err := repo.FindFanByCustomerID(context.Background(), "cus_1")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "fan_1", *id)
}

func TestCreatorRepo_FindFanByEmail_NotFoundIsNil(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCreatorRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	id, err := repo.FindFanByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, id)
}
