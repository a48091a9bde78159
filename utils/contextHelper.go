package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/statements_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyWorkerId      = appctx.ContextKeyWorkerId
	ContextKeyReviewerId    = appctx.ContextKeyReviewerId
	ContextKeyReviewerName  = appctx.ContextKeyReviewerName
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetWorkerIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyWorkerId)
}

func SetWorkerIdInContext(ctx context.Context, workerId string) context.Context {
	return appctx.Set(ctx, ContextKeyWorkerId, workerId)
}

func GetReviewerIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyReviewerId)
}

func SetReviewerIdInContext(ctx context.Context, reviewerId string) context.Context {
	return appctx.Set(ctx, ContextKeyReviewerId, reviewerId)
}

func GetReviewerNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyReviewerName)
}

func SetReviewerNameInContext(ctx context.Context, name string) context.Context {
	return appctx.Set(ctx, ContextKeyReviewerName, name)
}
