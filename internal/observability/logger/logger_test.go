package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/seatkeeper/internal/observability/context"
	"github.com/smallbiznis/seatkeeper/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOrgID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "user", "user_1")
	ctx = correlation.WithID(ctx, "corr-1")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "corr-1", fields["correlation_id"])
		assert.Equal(t, "42", fields["org_id"])
		assert.Equal(t, "user", fields["actor_type"])
		assert.Equal(t, "user_1", fields["actor_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT id FROM organization_members":                "SELECT",
		"  insert into invitations (id) values (1)":          "INSERT",
		"WITH drift AS (SELECT 1) UPDATE subscriptions SET x": "SELECT",
		"":               "UNKNOWN",
		"VACUUM ANALYZE": "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		`SELECT id FROM "organization_members" WHERE org_id = $1`: "organization_members",
		"INSERT INTO invitations (id) VALUES (1)":                 "invitations",
		"UPDATE subscriptions SET seats = 3":                      "subscriptions",
		"SELECT COUNT(*) FROM (SELECT 1) AS x":                    "",
		"SELECT 1":                                                "",
	}
	for sql, want := range cases {
		assert.Equal(t, want, tableFromSQL(sql), sql)
	}
}

func TestWithContextOmitsEmptyFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithOrgID(context.Background(), "42")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "42", fields["org_id"])
		assert.NotContains(t, fields, "request_id")
		assert.NotContains(t, fields, "trace_id")
	}
}
