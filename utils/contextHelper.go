package utils

import (
	"context"

	"github.com/verdecarbon/biochar_backend/appctx"
)

// Re-export the shared context keys so call sites don't import appctx directly.
var (
	ContextKeyOperator      = appctx.ContextKeyOperator
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyPublicForm    = appctx.ContextKeyPublicForm
)

func GetOperatorFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyOperator)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func IsPublicFormContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeyPublicForm)
	return ok && v
}

func SetOperatorInContext(ctx context.Context, operator string) context.Context {
	return appctx.Set(ctx, ContextKeyOperator, operator)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetPublicFormInContext(ctx context.Context) context.Context {
	return appctx.Set(ctx, ContextKeyPublicForm, true)
}
