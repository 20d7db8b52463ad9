// Package substrate implements the single outbound HTTP gateway to the
// external substrate service: auth headers, retry with exponential
// backoff, and a circuit breaker in front of a pooled http.Client.
package substrate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/masking"
	"github.com/codeready-toolchain/agentcore/pkg/models"
)

// Config configures the client.
type Config struct {
	BaseURL        string
	ServiceSecret  string
	RequestTimeout time.Duration

	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenProbes   int
}

// Client is the BFF substrate client. All mutation of the knowledge store
// goes through this type.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*apiResponse]
	masker  *masking.Service
}

type apiResponse struct {
	status int
	body   []byte
}

// httpError carries the response status so ClassifyRetryable and the breaker
// predicate can inspect it.
type httpError struct {
	status int
	body   []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("substrate: unexpected status %d: %s", e.status, string(e.body))
}

// New builds a Client with a pooled transport and a closed-state breaker.
func New(cfg Config) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = 3
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: transport,
	}

	settings := gobreaker.Settings{
		Name:        "substrate",
		MaxRequests: uint32(cfg.HalfOpenProbes),
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[*apiResponse](settings),
		masker:  masking.New(),
	}
}

// doJSON issues one request through the breaker + retry policy, sending
// token as the bearer (user JWT preferred, falling back to the service
// secret when token is empty), and decodes the JSON response body into out.
func (c *Client) doJSON(ctx context.Context, method, path, token string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "marshal substrate request")
		}
		payload = b
	}

	resp, err := c.execute(ctx, method, path, token, payload)
	if err != nil {
		return err
	}
	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return apperr.Wrap(apperr.Internal, err, "decode substrate response")
		}
	}
	return nil
}

// execute runs the retry-with-backoff loop around one breaker-guarded call.
func (c *Client) execute(ctx context.Context, method, path, token string, payload []byte) (*apiResponse, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // bounded by attempt count below, not wall clock

	var resp *apiResponse
	attempt := 0
	const maxAttempts = 3

	operation := func() error {
		attempt++
		r, err := c.breaker.Execute(func() (*apiResponse, error) {
			return c.rawRequest(ctx, method, path, token, payload)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return backoff.Permanent(apperr.New(apperr.SubstrateUnavailable, "substrate circuit open"))
			}
			if !retryable(err) || attempt >= maxAttempts {
				return backoff.Permanent(c.classify(err))
			}
			return err // retry
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			return nil, appErr
		}
		return nil, apperr.Wrap(apperr.SubstrateUnavailable, err, "substrate request failed")
	}
	return resp, nil
}

func (c *Client) rawRequest(ctx context.Context, method, path, token string, payload []byte) (*apiResponse, error) {
	url := c.cfg.BaseURL + path
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceSecret)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode >= 400 {
		return nil, &httpError{status: httpResp.StatusCode, body: body}
	}
	return &apiResponse{status: httpResp.StatusCode, body: body}, nil
}

// retryable implements spec §4.A: status ∈ {408, 429, 5xx} ∨ transport failure.
func retryable(err error) bool {
	var he *httpError
	if e, ok := err.(*httpError); ok {
		he = e
		return he.status == 408 || he.status == 429 || he.status >= 500
	}
	return true // transport-level error (DNS, connection refused, timeout, ...)
}

// classify turns a transport/HTTP failure into an apperr, masking the
// response body attached as a detail since substrate error bodies can echo
// back request content (e.g. validation errors quoting the submitted JSON).
func (c *Client) classify(err error) error {
	var he *httpError
	if e, ok := err.(*httpError); ok {
		he = e
		return apperr.Newf(apperr.SubstrateUnavailable, "substrate returned %d", he.status).WithDetails(map[string]any{
			"status": he.status,
			"body":   c.masker.MaskLogPayload(string(he.body)),
		})
	}
	return apperr.Wrap(apperr.SubstrateUnavailable, err, "substrate transport failure")
}

// IdempotencyKey derives a deterministic request id from content bytes so
// duplicate create_dump submissions persist identical rows.
func IdempotencyKey(basketID string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(basketID))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Health is a liveness probe against the substrate service.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", "", nil, nil)
}

// CreateBasket creates a container in substrate.
func (c *Client) CreateBasket(ctx context.Context, token string, originMetadata map[string]any) (string, error) {
	var out struct {
		BasketID string `json:"basket_id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/baskets", token, map[string]any{"origin_metadata": originMetadata}, &out)
	return out.BasketID, err
}

// GetBasketBlocks lists mature blocks, optionally filtered by state, limited to limit rows.
func (c *Client) GetBasketBlocks(ctx context.Context, token, basketID, state string, limit int) ([]map[string]any, error) {
	path := fmt.Sprintf("/baskets/%s/blocks?limit=%d", basketID, limit)
	if state != "" {
		path += "&state=" + state
	}
	var out struct {
		Blocks []map[string]any `json:"blocks"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out)
	return out.Blocks, err
}

// CreateDump creates an idempotent raw input; idempotency key is a
// deterministic hash of (basketID, content).
func (c *Client) CreateDump(ctx context.Context, token, basketID string, content []byte) (string, error) {
	key := IdempotencyKey(basketID, content)
	var out struct {
		DumpID string `json:"dump_id"`
	}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/baskets/%s/dumps", basketID), token, map[string]any{
		"idempotency_key": key,
		"content":         string(content),
	}, &out)
	return out.DumpID, err
}

// CreateWorkOutput persists an agent-emitted artifact.
func (c *Client) CreateWorkOutput(ctx context.Context, token string, out *models.WorkOutput) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/work-outputs", token, out, &resp)
	return resp.ID, err
}

// ListWorkOutputsFilter filters ListWorkOutputs.
type ListWorkOutputsFilter struct {
	BasketID  string
	TicketID  string
	Status    models.SupervisionStatus
	AgentKind models.AgentKind
	Type      models.OutputType
	Limit     int
	Offset    int
}

// ListWorkOutputs lists outputs, paginated and filtered.
func (c *Client) ListWorkOutputs(ctx context.Context, token string, f ListWorkOutputsFilter) ([]models.WorkOutput, error) {
	path := fmt.Sprintf("/work-outputs?basket_id=%s&ticket_id=%s&status=%s&agent_kind=%s&type=%s&limit=%d&offset=%d",
		f.BasketID, f.TicketID, f.Status, f.AgentKind, f.Type, f.Limit, f.Offset)
	var out struct {
		Outputs []models.WorkOutput `json:"outputs"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out)
	return out.Outputs, err
}

// GetWorkOutput fetches a single output by ID, for supervision routes that
// must inspect current status before transitioning it.
func (c *Client) GetWorkOutput(ctx context.Context, token, outputID string) (models.WorkOutput, error) {
	var out models.WorkOutput
	err := c.doJSON(ctx, http.MethodGet, "/work-outputs/"+outputID, token, nil, &out)
	return out, err
}

// UpdateWorkOutput changes supervision_status and attaches reviewer notes.
func (c *Client) UpdateWorkOutput(ctx context.Context, token, outputID string, status models.SupervisionStatus, reviewerNotes string) error {
	return c.doJSON(ctx, http.MethodPatch, "/work-outputs/"+outputID, token, map[string]any{
		"supervision_status": status,
		"reviewer_notes":     reviewerNotes,
	}, nil)
}

// MarkOutputPromoted records the proposal link and promotion method.
func (c *Client) MarkOutputPromoted(ctx context.Context, token, outputID, proposalID string, method models.PromotionMethod, userID string) error {
	return c.doJSON(ctx, http.MethodPost, "/work-outputs/"+outputID+"/mark-promoted", token, map[string]any{
		"proposal_id": proposalID,
		"method":      method,
		"user_id":     userID,
	}, nil)
}

// SkipOutputPromotion records an intentional non-promotion.
func (c *Client) SkipOutputPromotion(ctx context.Context, token, outputID string) error {
	return c.doJSON(ctx, http.MethodPost, "/work-outputs/"+outputID+"/skip-promotion", token, nil, nil)
}

// Proposal is the body submitted to CreateProposal.
type Proposal struct {
	BasketID string           `json:"basket_id"`
	Ops      []ProposalOp     `json:"ops"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// ProposalOp is one operation within a Proposal (spec: "a CreateBlock op").
type ProposalOp struct {
	Type             string   `json:"type"`
	SemanticType     string   `json:"semantic_type"`
	Body             string   `json:"body"`
	Confidence       float64  `json:"confidence"`
	SourceContextIDs []string `json:"source_context_ids,omitempty"`
}

// CreateProposal submits a block-creation proposal.
func (c *Client) CreateProposal(ctx context.Context, token string, p Proposal) (string, error) {
	var out struct {
		ProposalID string `json:"proposal_id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/proposals", token, p, &out)
	return out.ProposalID, err
}

// GetReferenceAssets lists assets for (basket, agent_kind, ticket, permanence),
// including a signed URL for each.
func (c *Client) GetReferenceAssets(ctx context.Context, token, basketID string, agentKind models.AgentKind, ticketID, permanence string) ([]map[string]any, error) {
	path := fmt.Sprintf("/baskets/%s/reference-assets?agent_kind=%s&ticket_id=%s&permanence=%s", basketID, agentKind, ticketID, permanence)
	var out struct {
		Assets []map[string]any `json:"assets"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out)
	return out.Assets, err
}

// InitiateWork triggers a substrate-side job and returns a job id to poll.
func (c *Client) InitiateWork(ctx context.Context, token, basketID, jobType string, params map[string]any) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/baskets/%s/jobs", basketID), token, map[string]any{
		"type":   jobType,
		"params": params,
	}, &out)
	return out.JobID, err
}

// GetWorkStatus polls a substrate-side job.
func (c *Client) GetWorkStatus(ctx context.Context, token, jobID string) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, http.MethodGet, "/jobs/"+jobID, token, nil, &out)
	return out, err
}

// ReadContextItem reads the most-recently-updated context item matching
// (item_type, item_key). Uses limit-1 rather than a single-row primitive to
// tolerate duplicate rows on the substrate side.
func (c *Client) ReadContextItem(ctx context.Context, token, basketID, itemType string, itemKey *string) (*models.ContextItem, bool, error) {
	path := fmt.Sprintf("/baskets/%s/context?item_type=%s&limit=1&order_by=updated_at", basketID, itemType)
	if itemKey != nil {
		path += "&item_key=" + *itemKey
	}
	var out struct {
		Items []models.ContextItem `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, false, err
	}
	if len(out.Items) == 0 {
		return nil, false, nil
	}
	return &out.Items[0], true, nil
}

// ListContextItems lists active context items for a basket, optionally filtered by tier.
func (c *Client) ListContextItems(ctx context.Context, token, basketID string, tier models.ContextTier) ([]models.ContextItem, error) {
	path := fmt.Sprintf("/baskets/%s/context?status=active", basketID)
	if tier != "" {
		path += "&tier=" + string(tier)
	}
	var out struct {
		Items []models.ContextItem `json:"items"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out)
	return out.Items, err
}

// UpsertContextItem writes a context item directly (unique key: basket + item_type + item_key).
func (c *Client) UpsertContextItem(ctx context.Context, token, basketID, itemType string, itemKey *string, content map[string]any, completeness float64, tier models.ContextTier) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/baskets/%s/context", basketID), token, map[string]any{
		"item_type":           itemType,
		"item_key":            itemKey,
		"content":             content,
		"completeness_score":  completeness,
		"tier":                tier,
	}, &out)
	return out.ID, err
}

// CreateGovernanceProposal submits a foundation-tier write for human approval.
func (c *Client) CreateGovernanceProposal(ctx context.Context, token, basketID, itemType string, itemKey *string, content map[string]any) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/baskets/%s/governance-proposals", basketID), token, map[string]any{
		"item_type": itemType,
		"item_key":  itemKey,
		"content":   content,
	}, &out)
	return out.ID, err
}

// CreateAnchorBlock writes a foundational block directly into a basket
// (used by the scaffolder's step 3 — the intent anchor, pre-accepted).
func (c *Client) CreateAnchorBlock(ctx context.Context, token, basketID, semanticType, anchorRole, body string, confidence float64, state string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/baskets/%s/blocks", basketID), token, map[string]any{
		"semantic_type": semanticType,
		"anchor_role":   anchorRole,
		"body":          body,
		"confidence":    confidence,
		"state":         state,
	}, &out)
	return out.ID, err
}
