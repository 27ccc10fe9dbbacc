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

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- EventRepo Tests ---

func TestEventRepo_RecordSighting_NewEvent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*int) = 1
				*dest[1].(*bool) = true // inserted
				return nil
			},
		})

	sighting, err := repo.RecordSighting(context.Background(), "evt_1", "payment_intent.succeeded", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, sighting.IsNew)
	assert.False(t, sighting.AlreadyProcessed)
	assert.Equal(t, 1, sighting.Attempts)
	db.AssertExpectations(t)
}

func TestEventRepo_RecordSighting_RetryIncrementsAttempts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*int) = 3
				*dest[1].(*bool) = false // updated, not inserted
				return nil
			},
		})

	sighting, err := repo.RecordSighting(context.Background(), "evt_1", "payment_intent.succeeded", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, sighting.IsNew)
	assert.False(t, sighting.AlreadyProcessed)
	assert.Equal(t, 3, sighting.Attempts)
}

func TestEventRepo_RecordSighting_AlreadyProcessed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	// The conditional update matches no row for processed events.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	sighting, err := repo.RecordSighting(context.Background(), "evt_1", "payment_intent.succeeded", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, sighting.AlreadyProcessed)
	assert.False(t, sighting.IsNew)
}

func TestEventRepo_RecordSighting_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.RecordSighting(context.Background(), "evt_1", "payment_intent.succeeded", []byte(`{}`))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestEventRepo_MarkProcessed_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkProcessed(context.Background(), "evt_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestEventRepo_MarkProcessed_AlreadyProcessedIsNoOp(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	// Concurrent delivery won the race; zero rows is not an error.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkProcessed(context.Background(), "evt_1")
	require.NoError(t, err)
}

func TestEventRepo_RecordFailure_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.RecordFailure(context.Background(), "evt_1", "handler blew up")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestEventRepo_RecordFailure_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("timeout"))

	err := repo.RecordFailure(context.Background(), "evt_1", "handler blew up")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
