package control

import "context"

type tenantContextKey struct{}

// TenantContext is the ambient value the control loop attaches to the
// context passed into a tenant's DoWork calls: it gives downstream
// collaborators a notion of which tenant and host URL they are running
// under, without threading it through every call signature (spec.md §9
// design note on the "background HTTP context").
type TenantContext struct {
	TenantID         string
	RequestURLHost   string
	RequestURLPrefix string
	IsBackground     bool
}

func withTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// TenantFromContext retrieves the ambient TenantContext a task's DoWork
// was invoked with.
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(TenantContext)
	return tc, ok
}
