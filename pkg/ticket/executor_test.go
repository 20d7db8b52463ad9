package ticket

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/agentruntime"
	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/llmclient"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/session"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
	"github.com/codeready-toolchain/agentcore/pkg/tools"
	"github.com/codeready-toolchain/agentcore/pkg/workrequest"
)

func dummyInput() agentruntime.Input {
	return agentruntime.Input{TaskDescription: "investigate"}
}

var ticketCols = []string{
	"id", "work_request_id", "agent_session_id", "basket_id", "workspace_id", "agent_kind", "status",
	"started_at", "ended_at", "output_count", "metadata", "created_at", "updated_at",
}

func ticketRow(id string, status models.WorkTicketStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(ticketCols).AddRow(
		id, "wr1", "sess1", "basket-1", "ws-1", string(models.AgentKindResearch), string(status),
		nil, nil, 0, []byte("{}"), now, now,
	)
}

func TestCreateInsertsPendingTicket(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO work_tickets").WillReturnRows(ticketRow("t1", models.WorkTicketStatusPending))

	sess := &models.AgentSession{ID: "sess1", BasketID: "basket-1", WorkspaceID: "ws-1", AgentKind: models.AgentKindResearch}
	ticket, err := Create(context.Background(), db, "wr1", sess)
	require.NoError(t, err)
	assert.Equal(t, "t1", ticket.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsNotFoundTicket(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, work_request_id").WillReturnError(sql.ErrNoRows)

	_, err = Get(context.Background(), db, "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestExecutorRunRejectsAlreadyRunningTicket(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, work_request_id").WillReturnRows(ticketRow("t1", models.WorkTicketStatusRunning))

	e := New(db, nil, nil, nil, nil)
	err = e.Run(context.Background(), "t1", dummyInput(), "token")
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

var sessionCols = []string{
	"id", "basket_id", "workspace_id", "agent_kind", "parent_session_id", "created_by_session_id",
	"provider_handle", "state", "metadata", "created_at", "updated_at",
}

func sessionRow(id string, state []byte) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(sessionCols).AddRow(
		id, "basket-1", "ws-1", string(models.AgentKindResearch), nil, nil, nil, state, []byte("{}"), now, now,
	)
}

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, systemPrompt string, messages []llmclient.Message, defs []llmclient.ToolDefinition) (llmclient.Response, error) {
	return llmclient.Response{ID: "msg_1", Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: "done"}}}, nil
}

type stubSubstrate struct{ substrate.API }

func (stubSubstrate) ListWorkOutputs(ctx context.Context, token string, f substrate.ListWorkOutputsFilter) ([]models.WorkOutput, error) {
	return nil, nil
}

func TestExecutorRunFetchesSessionAndPersistsConversationState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, work_request_id").WillReturnRows(ticketRow("t1", models.WorkTicketStatusPending))
	mock.ExpectExec("UPDATE work_tickets SET status = 'running'").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE work_requests SET status = 'running'").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, basket_id, workspace_id, agent_kind").WillReturnRows(sessionRow("sess1", []byte(`{"messages":[]}`)))
	mock.ExpectExec("UPDATE agent_sessions SET state").WithArgs("sess1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE agent_sessions SET provider_handle").WithArgs("sess1", "msg_1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE work_tickets SET status = \\$2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE work_requests SET status = 'completed'").WillReturnResult(sqlmock.NewResult(0, 1))

	sessions := session.New(db)
	requests := workrequest.New(db)
	runtimes := func() *agentruntime.Runtime { return agentruntime.New(stubLLM{}, tools.NewCatalog(), nil) }

	e := New(db, sessions, requests, stubSubstrate{}, runtimes)
	err = e.Run(context.Background(), "t1", dummyInput(), "token")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelReturnsFalseWhenNoCancelRegistered(t *testing.T) {
	e := New(nil, nil, nil, nil, nil)
	assert.False(t, e.Cancel("unknown"))
}

func TestCancelInvokesRegisteredCancelFunc(t *testing.T) {
	e := New(nil, nil, nil, nil, nil)
	called := false
	e.registerCancel("t1", func() { called = true })

	ok := e.Cancel("t1")
	assert.True(t, ok)
	assert.True(t, called)

	e.unregisterCancel("t1")
	assert.False(t, e.Cancel("t1"))
}
