package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentcore/pkg/agentruntime"
	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/progress"
	"github.com/codeready-toolchain/agentcore/pkg/scaffold"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
	"github.com/codeready-toolchain/agentcore/pkg/ticket"
	"github.com/codeready-toolchain/agentcore/pkg/tools"
)

type scaffoldRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	InitialContext string `json:"initial_context,omitempty"`
}

func (s *Server) scaffoldHandler(c *echo.Context) error {
	p := principalFrom(c)
	var req scaffoldRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeError(c, apperr.Wrap(apperr.Validation, err, "invalid request body"))
	}
	if req.Name == "" {
		return writeError(c, apperr.New(apperr.Validation, "name is required"))
	}

	summary, err := s.scaffolder.Run(c.Request().Context(), scaffold.Input{
		UserID:         p.UserID,
		WorkspaceID:    p.WorkspaceID,
		Name:           req.Name,
		Description:    req.Description,
		InitialContext: req.InitialContext,
		UserToken:      p.Token,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, summary)
}

type queueWorkRequest struct {
	BasketID        string           `json:"basket_id"`
	AgentKind       models.AgentKind `json:"agent_kind"`
	WorkMode        string           `json:"work_mode"`
	TaskDescription string           `json:"task_description"`
	Parameters      map[string]any   `json:"parameters,omitempty"`
	IsTrial         bool             `json:"is_trial"`
}

type queueWorkResponse struct {
	WorkRequestID string `json:"work_request_id"`
	TicketID      string `json:"ticket_id"`
	SessionID     string `json:"session_id"`
}

// queueWorkHandler implements POST /api/work/queue (spec §4.B through §4.G
// chained end to end: gate -> record -> session -> ticket -> execute).
// The ticket is admitted synchronously; its agent loop runs in the
// background, observable via the progress stream.
func (s *Server) queueWorkHandler(c *echo.Context) error {
	p := principalFrom(c)
	var req queueWorkRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeError(c, apperr.Wrap(apperr.Validation, err, "invalid request body"))
	}
	if req.BasketID == "" || !req.AgentKind.Valid() {
		return writeError(c, apperr.New(apperr.Validation, "basket_id and a valid agent_kind are required"))
	}

	ctx := c.Request().Context()

	if _, err := s.gate.Check(ctx, p.UserID, p.WorkspaceID, req.AgentKind); err != nil {
		return writeError(c, err)
	}

	workRequestID, err := s.requests.Create(ctx, p.UserID, p.WorkspaceID, req.BasketID, req.AgentKind, req.WorkMode, req.Parameters, req.IsTrial)
	if err != nil {
		return writeError(c, err)
	}

	sess, err := s.sessions.GetOrCreate(ctx, req.BasketID, p.WorkspaceID, req.AgentKind)
	if err != nil {
		return writeError(c, err)
	}

	t, err := ticket.Create(ctx, s.db.DB(), workRequestID, sess)
	if err != nil {
		return writeError(c, err)
	}

	referencedAssets, priorApproved, err := dynamicContext(ctx, s.substrate, p.Token, req.BasketID, req.AgentKind, t.ID)
	if err != nil {
		slog.Warn("failed to compute dynamic context, proceeding without it", "ticket_id", t.ID, "error", err)
	}

	input := agentruntime.Input{
		Session:              sess,
		AgentKind:            req.AgentKind,
		TaskDescription:      req.TaskDescription,
		Parameters:           req.Parameters,
		ReferencedAssets:     referencedAssets,
		PriorApprovedOutputs: priorApproved,
		CallCtx: tools.CallContext{
			Basket:    req.BasketID,
			Workspace: p.WorkspaceID,
			User:      p.UserID,
			Ticket:    t.ID,
			AgentKind: req.AgentKind,
			SessionID: sess.ID,
		},
	}

	go func() {
		runCtx := context.Background()
		if err := s.executor.Run(runCtx, t.ID, input, p.Token); err != nil {
			s.progress.EmitTerminal(t.ID, "failed", map[string]any{"error": err.Error()})
		}
	}()

	return c.JSON(http.StatusAccepted, queueWorkResponse{WorkRequestID: workRequestID, TicketID: t.ID, SessionID: sess.ID})
}

// runAgentHandler is the deprecated alias for queueWorkHandler (spec §6
// "legacy routes left only as thin HTTP facades").
func (s *Server) runAgentHandler(c *echo.Context) error {
	return s.queueWorkHandler(c)
}

func (s *Server) getTicketHandler(c *echo.Context) error {
	t, err := ticket.Get(c.Request().Context(), s.db.DB(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) streamTicketHandler(c *echo.Context) error {
	ticketID := c.Param("id")
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	send := func(e progress.Event) error {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("event: " + e.Type + "\ndata: " + string(b) + "\n\n")); err != nil {
			return err
		}
		resp.Flush()
		return nil
	}

	return s.progress.Stream(c.Request().Context(), ticketID, ticketStatusReader(s.db.DB()), send)
}

func (s *Server) getSessionHandler(c *echo.Context) error {
	sess, err := s.sessions.GetByBasketAndKind(c.Request().Context(), c.Param("basket"), models.AgentKind(c.Param("agent_kind")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) listOutputsHandler(c *echo.Context) error {
	p := principalFrom(c)
	filter := substrate.ListWorkOutputsFilter{
		BasketID: c.Param("basket"),
		Status:   models.SupervisionStatus(c.QueryParam("status")),
	}
	outputs, err := s.substrate.ListWorkOutputs(c.Request().Context(), p.Token, filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"outputs": outputs})
}

func (s *Server) approveOutputHandler(c *echo.Context) error {
	p := principalFrom(c)
	ctx := c.Request().Context()
	output, err := s.substrate.GetWorkOutput(ctx, p.Token, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := s.bridge.Approve(ctx, p.Token, output, p.WorkspaceID, p.UserID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) rejectOutputHandler(c *echo.Context) error {
	p := principalFrom(c)
	ctx := c.Request().Context()
	output, err := s.substrate.GetWorkOutput(ctx, p.Token, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := s.bridge.Reject(ctx, p.Token, output); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) promoteOutputHandler(c *echo.Context) error {
	p := principalFrom(c)
	ctx := c.Request().Context()
	output, err := s.substrate.GetWorkOutput(ctx, p.Token, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	proposalID, err := s.bridge.Promote(ctx, p.Token, output, models.PromotionMethodManual, p.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"proposal_id": proposalID})
}

func (s *Server) skipPromotionHandler(c *echo.Context) error {
	p := principalFrom(c)
	ctx := c.Request().Context()
	output, err := s.substrate.GetWorkOutput(ctx, p.Token, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := s.bridge.SkipPromotion(ctx, p.Token, output); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type tpChatRequest struct {
	BasketID string `json:"basket_id"`
	Message  string `json:"message"`
}

// thinkingPartnerChatHandler runs one synchronous turn against the
// thinking_partner session (spec.md's conversational, non-ticketed surface:
// no WorkTicket/WorkRequest is created, since there is nothing to supervise
// or promote from a chat turn).
func (s *Server) thinkingPartnerChatHandler(c *echo.Context) error {
	p := principalFrom(c)
	var req tpChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeError(c, apperr.Wrap(apperr.Validation, err, "invalid request body"))
	}
	if req.BasketID == "" || req.Message == "" {
		return writeError(c, apperr.New(apperr.Validation, "basket_id and message are required"))
	}

	ctx := c.Request().Context()
	sess, err := s.sessions.GetOrCreate(ctx, req.BasketID, p.WorkspaceID, models.AgentKindThinkingPartner)
	if err != nil {
		return writeError(c, err)
	}

	referencedAssets, priorApproved, err := dynamicContext(ctx, s.substrate, p.Token, req.BasketID, models.AgentKindThinkingPartner, "")
	if err != nil {
		slog.Warn("failed to compute dynamic context, proceeding without it", "basket_id", req.BasketID, "error", err)
	}

	lock := s.sessions.Lock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	runtime := s.runtimeFactory()
	result, err := runtime.Execute(ctx, agentruntime.Input{
		Session:              sess,
		AgentKind:            models.AgentKindThinkingPartner,
		TaskDescription:      req.Message,
		ReferencedAssets:     referencedAssets,
		PriorApprovedOutputs: priorApproved,
		CallCtx: tools.CallContext{
			Basket:    req.BasketID,
			Workspace: p.WorkspaceID,
			User:      p.UserID,
			AgentKind: models.AgentKindThinkingPartner,
			SessionID: sess.ID,
			UserToken: p.Token,
		},
	}, nil)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"session_id": sess.ID, "response": result.ResponseText})
}

type triggerRecipeRequest struct {
	BasketID   string         `json:"basket_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   string         `json:"priority,omitempty"`
}

func (s *Server) triggerRecipeHandler(c *echo.Context) error {
	p := principalFrom(c)
	var req triggerRecipeRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeError(c, apperr.Wrap(apperr.Validation, err, "invalid request body"))
	}

	ticketID, err := s.triggerRecipe(c.Request().Context(), tools.CallContext{
		Basket:    req.BasketID,
		Workspace: p.WorkspaceID,
		User:      p.UserID,
		UserToken: p.Token,
	}, c.Param("slug"), req.Parameters, req.Priority)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{"work_ticket_id": ticketID})
}

