// Package api is the HTTP Surface (component K): thin routes that adapt
// HTTP requests to the components above, grounded on the teacher's
// pkg/api/server.go Echo v5 wiring.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/agentcore/pkg/authjwt"
	"github.com/codeready-toolchain/agentcore/pkg/database"
	"github.com/codeready-toolchain/agentcore/pkg/permission"
	"github.com/codeready-toolchain/agentcore/pkg/progress"
	"github.com/codeready-toolchain/agentcore/pkg/scaffold"
	"github.com/codeready-toolchain/agentcore/pkg/session"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
	"github.com/codeready-toolchain/agentcore/pkg/supervision"
	"github.com/codeready-toolchain/agentcore/pkg/ticket"
	"github.com/codeready-toolchain/agentcore/pkg/tools"
	"github.com/codeready-toolchain/agentcore/pkg/version"
	"github.com/codeready-toolchain/agentcore/pkg/workrequest"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	legacy     *gin.Engine
	httpServer *http.Server

	db             *database.Client
	verifier       *authjwt.Verifier
	gate           *permission.Gate
	requests       *workrequest.Recorder
	sessions       *session.Registry
	executor       *ticket.Executor
	bridge         *supervision.Bridge
	progress       *progress.Channel
	scaffolder     *scaffold.Scaffolder
	substrate      substrate.API
	catalog        *tools.Catalog
	runtimeFactory ticket.RuntimeFactory
	triggerRecipe  tools.TriggerRecipe
}

// Deps bundles the components the HTTP surface adapts.
type Deps struct {
	DB             *database.Client
	Verifier       *authjwt.Verifier
	Gate           *permission.Gate
	Requests       *workrequest.Recorder
	Sessions       *session.Registry
	Executor       *ticket.Executor
	Bridge         *supervision.Bridge
	Progress       *progress.Channel
	Scaffolder     *scaffold.Scaffolder
	Substrate      substrate.API
	Catalog        *tools.Catalog
	RuntimeFactory ticket.RuntimeFactory
	TriggerRecipe  tools.TriggerRecipe
}

// NewServer builds the Echo-based API server and registers every route.
func NewServer(deps Deps) *Server {
	e := echo.New()

	s := &Server{
		echo:           e,
		db:             deps.DB,
		verifier:       deps.Verifier,
		gate:           deps.Gate,
		requests:       deps.Requests,
		sessions:       deps.Sessions,
		executor:       deps.Executor,
		bridge:         deps.Bridge,
		progress:       deps.Progress,
		scaffolder:     deps.Scaffolder,
		substrate:      deps.Substrate,
		catalog:        deps.Catalog,
		runtimeFactory: deps.RuntimeFactory,
		triggerRecipe:  deps.TriggerRecipe,
	}

	s.setupRoutes()
	s.setupLegacyFacade()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/health/db", s.healthDBHandler)
	s.echo.GET("/health/queue", s.healthQueueHandler)

	api := s.echo.Group("/api", requireAuth(s.verifier))

	api.POST("/projects/scaffold", s.scaffoldHandler)
	api.POST("/agents/run", s.runAgentHandler) // deprecated per spec §6
	api.POST("/work/queue", s.queueWorkHandler)
	api.GET("/work/tickets/:id/stream", s.streamTicketHandler)
	api.GET("/work/tickets/:id", s.getTicketHandler)

	api.GET("/sessions/:basket/:agent_kind", s.getSessionHandler)

	api.GET("/supervision/baskets/:basket/outputs", s.listOutputsHandler)
	api.POST("/supervision/outputs/:id/approve", s.approveOutputHandler)
	api.POST("/supervision/outputs/:id/reject", s.rejectOutputHandler)
	api.POST("/supervision/outputs/:id/promote", s.promoteOutputHandler)
	api.POST("/supervision/outputs/:id/skip-promotion", s.skipPromotionHandler)

	api.POST("/tp/chat", s.thinkingPartnerChatHandler)

	api.POST("/recipes/:slug/trigger", s.triggerRecipeHandler)
}

// setupLegacyFacade mounts the gin-based legacy routes as thin facades that
// forward to the same handlers as the primary echo surface (spec.md's
// "Legacy routes left only as thin HTTP facades" non-goal — no new logic
// lives here).
func (s *Server) setupLegacyFacade() {
	g := gin.New()
	g.GET("/legacy/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.GitCommit})
	})
	s.legacy = g
}

// Start runs both the echo server (primary) and, on a second listener, the
// gin legacy facade.
func (s *Server) Start(addr, legacyAddr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	if legacyAddr != "" {
		go func() {
			_ = s.legacy.Run(legacyAddr)
		}()
	}
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]healthCheck `json:"checks,omitempty"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: healthStatusHealthy, Version: version.GitCommit})
}

func (s *Server) healthDBHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := healthStatusHealthy
	httpStatus := http.StatusOK
	checks := map[string]healthCheck{}

	if err := s.db.Health(ctx); err != nil {
		status = healthStatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
		checks["database"] = healthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = healthCheck{Status: healthStatusHealthy}
	}

	return c.JSON(httpStatus, healthResponse{Status: status, Version: version.GitCommit, Checks: checks})
}

func (s *Server) healthQueueHandler(c *echo.Context) error {
	// The ticket executor has no background poll loop of its own to probe
	// (tickets are dispatched synchronously by the route handler per spec
	// §4.G); queue health reduces to "the executor was constructed".
	status := healthStatusHealthy
	if s.executor == nil {
		status = healthStatusUnhealthy
	}
	return c.JSON(http.StatusOK, healthResponse{Status: status, Version: version.GitCommit})
}

func ticketStatusReader(db *sql.DB) progress.TicketStatusReader {
	return func(ctx context.Context, ticketID string) (string, error) {
		var status string
		err := db.QueryRowContext(ctx, `SELECT status FROM work_tickets WHERE id = $1`, ticketID).Scan(&status)
		return status, err
	}
}
