package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS decisions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateDecision(t *testing.T) {
	st, mock := newMockPostgres(t)
	d := testDecision(t, "owner-1")

	mock.ExpectExec("INSERT INTO decisions").
		WithArgs(d.ID, d.OwnerID, string(d.Status), pgxmock.AnyArg(), d.Deleted, d.CreatedAt, d.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.CreateDecision(context.Background(), d))
	assert.Equal(t, int64(1), d.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetDecision(t *testing.T) {
	st, mock := newMockPostgres(t)
	d := testDecision(t, "owner-1")
	doc, err := json.Marshal(d)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc, revision FROM decisions").
		WithArgs(d.ID).
		WillReturnRows(pgxmock.NewRows([]string{"doc", "revision"}).AddRow(doc, int64(3)))

	got, err := st.GetDecision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, int64(3), got.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetDecision_Missing(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT doc, revision FROM decisions").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "revision"}))

	_, err := st.GetDecision(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, fault.AsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateDecision_RevisionMatch(t *testing.T) {
	st, mock := newMockPostgres(t)
	d := testDecision(t, "owner-1")
	d.Revision = 2

	mock.ExpectExec("UPDATE decisions").
		WithArgs(pgxmock.AnyArg(), string(d.Status), d.Deleted, d.UpdatedAt, d.ID, int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.UpdateDecision(context.Background(), d))
	assert.Equal(t, int64(3), d.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateDecision_StaleRevision(t *testing.T) {
	st, mock := newMockPostgres(t)
	d := testDecision(t, "owner-1")
	d.Revision = 1

	mock.ExpectExec("UPDATE decisions").
		WithArgs(pgxmock.AnyArg(), string(d.Status), d.Deleted, d.UpdatedAt, d.ID, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateDecision(context.Background(), d)
	require.Error(t, err)
	assert.True(t, fault.AsConcurrencyConflict(err))
	assert.Equal(t, int64(1), d.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListDecisions_StatusFilter(t *testing.T) {
	st, mock := newMockPostgres(t)
	d := testDecision(t, "owner-1")
	doc, err := json.Marshal(d)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc, revision FROM decisions").
		WithArgs("pending").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "revision"}).AddRow(doc, int64(1)))

	out, err := st.ListDecisions(context.Background(), DecisionFilter{Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, d.ID, out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetDecision_CorruptedDocument(t *testing.T) {
	st, mock := newMockPostgres(t)
	d := testDecision(t, "owner-1")
	d.ContextVersion = 9 // breaks the sequence invariant
	doc, err := json.Marshal(d)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc, revision FROM decisions").
		WithArgs(d.ID).
		WillReturnRows(pgxmock.NewRows([]string{"doc", "revision"}).AddRow(doc, int64(1)))

	_, err = st.GetDecision(context.Background(), d.ID)
	require.Error(t, err)
	assert.True(t, fault.AsInvariantViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DriverFailure_IsDependencyError(t *testing.T) {
	st, mock := newMockPostgres(t)
	d := testDecision(t, "owner-1")

	mock.ExpectQuery("SELECT doc, revision FROM decisions").
		WithArgs(d.ID).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := st.GetDecision(context.Background(), d.ID)
	require.Error(t, err)
	assert.True(t, fault.AsDependency(err))
	assert.False(t, fault.AsNotFound(err))

	mock.ExpectExec("UPDATE decisions").
		WithArgs(pgxmock.AnyArg(), string(d.Status), d.Deleted, d.UpdatedAt, d.ID, int64(1)).
		WillReturnError(errors.New("connection reset by peer"))

	d.Revision = 1
	err = st.UpdateDecision(context.Background(), d)
	require.Error(t, err)
	assert.True(t, fault.AsDependency(err))
	assert.False(t, fault.AsConcurrencyConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
