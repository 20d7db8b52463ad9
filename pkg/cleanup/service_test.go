package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDeleteOldWorkRequestsExecutesRetentionDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM work_requests").
		WithArgs(90).
		WillReturnResult(sqlmock.NewResult(0, 3))

	svc := NewService(db, 90, time.Hour)
	svc.deleteOldWorkRequests(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAllToleratesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM work_requests").WillReturnError(context.DeadlineExceeded)

	svc := NewService(db, 90, time.Hour)
	svc.runAll(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStopStopsCleanly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec("DELETE FROM work_requests").WillReturnResult(sqlmock.NewResult(0, 0))

	svc := NewService(db, 90, time.Hour)
	svc.Start(context.Background())
	svc.Stop()
}
