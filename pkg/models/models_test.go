package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkRequestStatusTerminal(t *testing.T) {
	assert.True(t, WorkRequestStatusCompleted.Terminal())
	assert.True(t, WorkRequestStatusFailed.Terminal())
	assert.False(t, WorkRequestStatusPending.Terminal())
	assert.False(t, WorkRequestStatusRunning.Terminal())
}

func TestWorkTicketStatusTerminal(t *testing.T) {
	assert.True(t, WorkTicketStatusCompleted.Terminal())
	assert.True(t, WorkTicketStatusPendingReview.Terminal())
	assert.True(t, WorkTicketStatusFailed.Terminal())
	assert.False(t, WorkTicketStatusPending.Terminal())
	assert.False(t, WorkTicketStatusRunning.Terminal())
	assert.False(t, WorkTicketStatusPaused.Terminal())
}

func TestOutputTypePromotable(t *testing.T) {
	assert.True(t, OutputTypeFinding.Promotable())
	assert.True(t, OutputTypeRecommendation.Promotable())
	assert.True(t, OutputTypeInsight.Promotable())
	assert.True(t, OutputTypeReportSection.Promotable())
	assert.False(t, OutputTypeDraftContent.Promotable())
	assert.False(t, OutputTypeDocument.Promotable())
	assert.False(t, OutputTypeError.Promotable())
}

func TestOutputTypeSemanticType(t *testing.T) {
	assert.Equal(t, "fact", OutputTypeFinding.SemanticType())
	assert.Equal(t, "action", OutputTypeRecommendation.SemanticType())
	assert.Equal(t, "insight", OutputTypeInsight.SemanticType())
	assert.Equal(t, "knowledge", OutputTypeReportSection.SemanticType())
	assert.Equal(t, "", OutputTypeDocument.SemanticType())
}
