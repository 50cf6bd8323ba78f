package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/utils"
)

// publishEvent pushes a lifecycle transition to Pub/Sub for downstream
// consumers (certificate generation, accounting paperwork). Best-effort:
// a transition is never rolled back because the event did not publish.
func (c *LifecycleController) publishEvent(ctx context.Context, remission *models.Remission, phase string) {
	if !config.PublishLifecycleEvents() {
		return
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	source := "operator"
	if utils.IsPublicFormContext(ctx) {
		source = "public_form"
	}
	traceId := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceId = sc.TraceID().String()
	}
	publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := config.PublishLifecycleEvent(publishCtx, config.LifecycleEvent{
		RemissionId:   remission.ID,
		Phase:         phase,
		OccurredAt:    time.Now().UTC(),
		Client:        remission.ClientName,
		Source:        source,
		CorrelationId: correlationId,
		TraceId:       traceId,
	})
	if err != nil {
		config.LogError(c.logger, "workflow/events.go", "publishEvent", phase, remission.ID, err)
	}
}
