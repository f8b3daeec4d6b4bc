package utils

import (
	"context"

	"bitbucket.org/mmtopup/recon_backend/appctx"
)

var (
	ContextKeyOperatorId     = appctx.ContextKeyOperatorId
	ContextKeyCorrelationId  = appctx.ContextKeyCorrelationId
	ContextKeyForceReprocess = appctx.ContextKeyForceReprocess
)

func GetOperatorIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyOperatorId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetForceReprocessFromContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeyForceReprocess)
	return ok && v
}

func SetOperatorIdInContext(ctx context.Context, operatorId string) context.Context {
	return appctx.Set(ctx, ContextKeyOperatorId, operatorId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetForceReprocessInContext(ctx context.Context, force bool) context.Context {
	return appctx.Set(ctx, ContextKeyForceReprocess, force)
}
