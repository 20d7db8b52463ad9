// Package models holds the shared domain types for the work-orchestration
// core: the four tables the core owns directly (Project, WorkRequest,
// AgentSession, WorkTicket) plus the DTOs used to move data across the
// substrate HTTP boundary (WorkOutput, ContextItem, GovernanceProposal).
package models

import "time"

// AgentKind enumerates the specialist agent kinds the core knows how to run.
type AgentKind string

const (
	AgentKindResearch        AgentKind = "research"
	AgentKindContent         AgentKind = "content"
	AgentKindReporting       AgentKind = "reporting"
	AgentKindThinkingPartner AgentKind = "thinking_partner"
)

// Valid reports whether k is one of the known agent kinds.
func (k AgentKind) Valid() bool {
	switch k {
	case AgentKindResearch, AgentKindContent, AgentKindReporting, AgentKindThinkingPartner:
		return true
	default:
		return false
	}
}

// ProjectStatus enumerates Project.status.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
)

// Project is the user-facing container; exactly one basket per project.
type Project struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspace_id"`
	BasketID    string        `json:"basket_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// WorkRequestStatus enumerates WorkRequest.status.
type WorkRequestStatus string

const (
	WorkRequestStatusPending   WorkRequestStatus = "pending"
	WorkRequestStatusRunning   WorkRequestStatus = "running"
	WorkRequestStatusCompleted WorkRequestStatus = "completed"
	WorkRequestStatusFailed    WorkRequestStatus = "failed"
)

// Terminal reports whether the status cannot be left by a further transition.
func (s WorkRequestStatus) Terminal() bool {
	return s == WorkRequestStatusCompleted || s == WorkRequestStatusFailed
}

// WorkRequest is the durable record of intent.
type WorkRequest struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	WorkspaceID   string            `json:"workspace_id"`
	BasketID      string            `json:"basket_id"`
	AgentKind     AgentKind         `json:"agent_kind"`
	WorkMode      string            `json:"work_mode"`
	Payload       []byte            `json:"payload"`
	IsTrial       bool              `json:"is_trial"`
	Status        WorkRequestStatus `json:"status"`
	ResultSummary string            `json:"result_summary,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AgentSession is the persistent conversation context for one (basket, agent_kind) pair.
type AgentSession struct {
	ID                string    `json:"id"`
	BasketID          string    `json:"basket_id"`
	WorkspaceID       string    `json:"workspace_id"`
	AgentKind         AgentKind `json:"agent_kind"`
	ParentSessionID   *string   `json:"parent_session_id,omitempty"`
	CreatedBySessionID *string  `json:"created_by_session_id,omitempty"`
	ProviderHandle    *string   `json:"provider_handle,omitempty"`
	State             []byte    `json:"state,omitempty"`
	Metadata          []byte    `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// WorkTicketStatus enumerates WorkTicket.status.
type WorkTicketStatus string

const (
	WorkTicketStatusPending       WorkTicketStatus = "pending"
	WorkTicketStatusRunning       WorkTicketStatus = "running"
	WorkTicketStatusCompleted     WorkTicketStatus = "completed"
	WorkTicketStatusPendingReview WorkTicketStatus = "pending_review"
	WorkTicketStatusFailed        WorkTicketStatus = "failed"
	WorkTicketStatusPaused        WorkTicketStatus = "paused"
)

// Terminal reports whether the status cannot be left by a further transition.
func (s WorkTicketStatus) Terminal() bool {
	switch s {
	case WorkTicketStatusCompleted, WorkTicketStatusPendingReview, WorkTicketStatusFailed:
		return true
	default:
		return false
	}
}

// WorkTicket is one execution attempt of a WorkRequest.
type WorkTicket struct {
	ID            string           `json:"id"`
	WorkRequestID string           `json:"work_request_id"`
	SessionID     string           `json:"agent_session_id"`
	BasketID      string           `json:"basket_id"`
	WorkspaceID   string           `json:"workspace_id"`
	AgentKind     AgentKind        `json:"agent_kind"`
	Status        WorkTicketStatus `json:"status"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	OutputCount   int              `json:"output_count"`
	Metadata      []byte           `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// OutputType enumerates WorkOutput.output_type.
type OutputType string

const (
	OutputTypeFinding         OutputType = "finding"
	OutputTypeRecommendation  OutputType = "recommendation"
	OutputTypeInsight         OutputType = "insight"
	OutputTypeDraftContent    OutputType = "draft_content"
	OutputTypeContentVariant  OutputType = "content_variant"
	OutputTypeContentAsset    OutputType = "content_asset"
	OutputTypeReportSection   OutputType = "report_section"
	OutputTypeDocument        OutputType = "document"
	OutputTypeError           OutputType = "error"
)

// Promotable reports whether this output type may ever be promoted to a block.
func (t OutputType) Promotable() bool {
	switch t {
	case OutputTypeFinding, OutputTypeRecommendation, OutputTypeInsight, OutputTypeReportSection:
		return true
	default:
		return false
	}
}

// SemanticType maps an output_type to the substrate block semantic_type used
// when building a promotion proposal. Only valid for Promotable() types.
func (t OutputType) SemanticType() string {
	switch t {
	case OutputTypeFinding:
		return "fact"
	case OutputTypeRecommendation:
		return "action"
	case OutputTypeInsight:
		return "insight"
	case OutputTypeReportSection:
		return "knowledge"
	default:
		return ""
	}
}

// SupervisionStatus enumerates WorkOutput.supervision_status.
type SupervisionStatus string

const (
	SupervisionStatusPendingReview     SupervisionStatus = "pending_review"
	SupervisionStatusApproved          SupervisionStatus = "approved"
	SupervisionStatusRejected          SupervisionStatus = "rejected"
	SupervisionStatusRevisionRequested SupervisionStatus = "revision_requested"
)

// PromotionMethod enumerates WorkOutput.promotion_method.
type PromotionMethod string

const (
	PromotionMethodNone   PromotionMethod = ""
	PromotionMethodAuto   PromotionMethod = "auto"
	PromotionMethodManual PromotionMethod = "manual"
	PromotionMethodSkipped PromotionMethod = "skipped"
)

// WorkOutput is a structured artifact emitted by an agent during a ticket.
// This is a wire DTO mirroring the substrate service's shape — it is never
// scanned from a local table; it only ever travels through pkg/substrate.
type WorkOutput struct {
	ID                   string            `json:"id"`
	BasketID             string            `json:"basket_id"`
	WorkTicketID         string            `json:"work_ticket_id"`
	AgentKind            AgentKind         `json:"agent_kind"`
	OutputType           OutputType        `json:"output_type"`
	Title                string            `json:"title"`
	Body                 string            `json:"body"`
	Confidence           float64           `json:"confidence"`
	SourceContextIDs     []string          `json:"source_context_ids,omitempty"`
	ToolCallID           string            `json:"tool_call_id,omitempty"`
	SupervisionStatus    SupervisionStatus `json:"supervision_status"`
	PromotionMethod      PromotionMethod   `json:"promotion_method,omitempty"`
	SubstrateProposalID  string            `json:"substrate_proposal_id,omitempty"`
	RequiresReview       bool              `json:"requires_review,omitempty"`
	Metadata             map[string]any    `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ContextTier enumerates ContextItem.tier.
type ContextTier string

const (
	ContextTierFoundation ContextTier = "foundation"
	ContextTierWorking    ContextTier = "working"
	ContextTierEphemeral  ContextTier = "ephemeral"
)

// ContextItem is substrate-owned structured context attached to a basket.
type ContextItem struct {
	ID                 string         `json:"id"`
	BasketID           string         `json:"basket_id"`
	ItemType           string         `json:"item_type"`
	ItemKey            *string        `json:"item_key,omitempty"`
	Tier               ContextTier    `json:"tier"`
	Content            map[string]any `json:"content"`
	CompletenessScore  float64        `json:"completeness_score"`
	Status             string         `json:"status"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// GovernanceProposal is opaque to the core once created; only its ID is kept.
type GovernanceProposal struct {
	ID string `json:"id"`
}
