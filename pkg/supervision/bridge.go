// Package supervision implements the Supervision/Promotion Bridge (H): the
// state machine over WorkOutput.supervision_status and the promote
// procedure that creates a substrate proposal.
package supervision

import (
	"context"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
)

// WorkspaceSettings is the swappable seam for workspace-level promotion
// configuration: auto-promote mode and the allow-list of auto-promotable
// output types.
type WorkspaceSettings interface {
	PromotionMode(ctx context.Context, workspaceID string) (auto bool, err error)
	AutoPromoteTypes(ctx context.Context, workspaceID string) ([]models.OutputType, error)
}

// Bridge implements the state machine.
type Bridge struct {
	client   substrate.API
	settings WorkspaceSettings
}

// New builds a Bridge.
func New(client substrate.API, settings WorkspaceSettings) *Bridge {
	return &Bridge{client: client, settings: settings}
}

// Approve transitions an output pending_review -> approved, and — if
// promotion_mode is auto and the output's type is in the auto_promote set —
// synchronously calls Promote.
func (b *Bridge) Approve(ctx context.Context, token string, output models.WorkOutput, workspaceID, reviewerID string) error {
	if err := requireStatus(output, models.SupervisionStatusPendingReview, models.SupervisionStatusRevisionRequested); err != nil {
		return err
	}
	if err := b.client.UpdateWorkOutput(ctx, token, output.ID, models.SupervisionStatusApproved, ""); err != nil {
		return err
	}

	auto, err := b.settings.PromotionMode(ctx, workspaceID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "read promotion mode")
	}
	if !auto {
		return nil
	}

	autoTypes, err := b.settings.AutoPromoteTypes(ctx, workspaceID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "read auto-promote types")
	}
	if !containsType(autoTypes, output.OutputType) {
		return nil
	}

	output.SupervisionStatus = models.SupervisionStatusApproved
	_, err = b.Promote(ctx, token, output, models.PromotionMethodAuto, reviewerID)
	return err
}

// Reject transitions an output pending_review/revision_requested -> rejected.
func (b *Bridge) Reject(ctx context.Context, token string, output models.WorkOutput) error {
	if err := requireStatus(output, models.SupervisionStatusPendingReview, models.SupervisionStatusRevisionRequested); err != nil {
		return err
	}
	return b.client.UpdateWorkOutput(ctx, token, output.ID, models.SupervisionStatusRejected, "")
}

// RequestRevision transitions pending_review -> revision_requested.
func (b *Bridge) RequestRevision(ctx context.Context, token string, output models.WorkOutput, notes string) error {
	if err := requireStatus(output, models.SupervisionStatusPendingReview); err != nil {
		return err
	}
	return b.client.UpdateWorkOutput(ctx, token, output.ID, models.SupervisionStatusRevisionRequested, notes)
}

// Promote builds and submits a substrate proposal for an approved output,
// then records the link. An output may be promoted at most once (spec §8
// "Promotion uniqueness"): attempting to promote an output whose
// substrate_proposal_id is already set fails with Conflict.
func (b *Bridge) Promote(ctx context.Context, token string, output models.WorkOutput, method models.PromotionMethod, userID string) (string, error) {
	if output.SupervisionStatus != models.SupervisionStatusApproved {
		return "", apperr.New(apperr.Conflict, "output is not approved")
	}
	if output.SubstrateProposalID != "" {
		return "", apperr.New(apperr.Conflict, "output already promoted")
	}
	if !output.OutputType.Promotable() {
		return "", apperr.Newf(apperr.Conflict, "output type %s is not promotable", output.OutputType)
	}

	proposal := substrate.Proposal{
		BasketID: output.BasketID,
		Ops: []substrate.ProposalOp{{
			Type:             "CreateBlock",
			SemanticType:     output.OutputType.SemanticType(),
			Body:             output.Body,
			Confidence:       output.Confidence,
			SourceContextIDs: output.SourceContextIDs,
		}},
		Metadata: map[string]any{"work_output_id": output.ID},
	}

	proposalID, err := b.client.CreateProposal(ctx, token, proposal)
	if err != nil {
		// Leave the output approved with promotion_method unset; the
		// operation is safely retriable (spec §4.H "Promote procedure").
		return "", err
	}

	if err := b.client.MarkOutputPromoted(ctx, token, output.ID, proposalID, method, userID); err != nil {
		return "", err
	}
	return proposalID, nil
}

// SkipPromotion records an intentional non-promotion for an approved output.
func (b *Bridge) SkipPromotion(ctx context.Context, token string, output models.WorkOutput) error {
	if output.SupervisionStatus != models.SupervisionStatusApproved {
		return apperr.New(apperr.Conflict, "output is not approved")
	}
	if output.SubstrateProposalID != "" {
		return apperr.New(apperr.Conflict, "output already promoted")
	}
	return b.client.SkipOutputPromotion(ctx, token, output.ID)
}

func requireStatus(output models.WorkOutput, allowed ...models.SupervisionStatus) error {
	for _, s := range allowed {
		if output.SupervisionStatus == s {
			return nil
		}
	}
	return apperr.Newf(apperr.Conflict, "output is in status %s, expected one of %v", output.SupervisionStatus, allowed)
}

func containsType(types []models.OutputType, t models.OutputType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
