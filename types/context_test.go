package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithTenantID(ctx, "tenant")
	if got, ok := TenantID(ctx); !ok || got != "tenant" {
		t.Fatalf("TenantID mismatch: %v %v", got, ok)
	}

	ctx = WithAgentID(ctx, "agent")
	if got, ok := AgentID(ctx); !ok || got != "agent" {
		t.Fatalf("AgentID mismatch: %v %v", got, ok)
	}

	ctx = WithRequestID(ctx, "req")
	if got, ok := RequestID(ctx); !ok || got != "req" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	t.Parallel()

	ctx := WithTenantID(context.Background(), "")
	if _, ok := TenantID(ctx); ok {
		t.Fatal("empty tenant ID should report ok=false")
	}
	if _, ok := AgentID(context.Background()); ok {
		t.Fatal("missing agent ID should report ok=false")
	}
}
