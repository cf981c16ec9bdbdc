package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	runIDKey   contextKey = "run_id"
	shardIDKey contextKey = "shard_id"
	queryIDKey contextKey = "query_id"
	tenantIDKey contextKey = "tenant_id"
	userIDKey   contextKey = "user_id"
	rolesKey    contextKey = "roles"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithShardID attaches the originating shard id to ctx, for log
// correlation across a distributed searcher fan-out.
func WithShardID(ctx context.Context, shardID string) context.Context {
	return context.WithValue(ctx, shardIDKey, shardID)
}

// ShardID retrieves the shard id set by WithShardID.
func ShardID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(shardIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithQueryID attaches a query correlation id to ctx. httpapi sets it per
// request and reports it in error responses; no other package reads it.
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}

// QueryID retrieves the query id set by WithQueryID.
func QueryID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(queryIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTenantID attaches the caller's tenant, extracted from a JWT
// claim by the JWTAuth middleware; TenantRateLimiter keys its per-tenant
// limits on it.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID retrieves the tenant id set by WithTenantID.
func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithUserID attaches the authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID retrieves the user id set by WithUserID.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRoles attaches the authenticated caller's roles to ctx.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}

// Roles retrieves the roles set by WithRoles.
func Roles(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(v) == 0 {
		return nil, false
	}
	return v, true
}
