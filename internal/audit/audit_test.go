package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"securevault/internal/metrics"
	"securevault/internal/model"
	"securevault/internal/repository/memory"
	"securevault/internal/repository/mocks"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestLog_Record(t *testing.T) {
	repo := memory.NewAuditMemory()
	l := New(repo, zerolog.Nop(), nil, 0)
	l.now = fixedNow

	actor := model.Identity{ActorID: "alice", SourceIP: "10.0.0.9"}
	l.Record(context.Background(), actor, model.ActionUpload, "f-1", "report.pdf (12 bytes)")
	l.Record(context.Background(), actor, model.ActionAccessDenied, "", "not_found")

	entries, err := l.Query(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byAction := map[model.AuditAction]model.AuditEntry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}

	up := byAction[model.ActionUpload]
	require.NotNil(t, up.FileID)
	assert.Equal(t, "f-1", *up.FileID)
	assert.Equal(t, "report.pdf (12 bytes)", up.OutcomeDetail)
	assert.Equal(t, "10.0.0.9", up.SourceIP)
	assert.Equal(t, fixedNow(), up.Timestamp)

	denied := byAction[model.ActionAccessDenied]
	assert.Nil(t, denied.FileID)
	assert.Equal(t, "not_found", denied.OutcomeDetail)
}

func TestLog_RecordSurvivesCancelledContext(t *testing.T) {
	repo := memory.NewAuditMemory()
	l := New(repo, zerolog.Nop(), nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Record(ctx, model.Identity{ActorID: "alice"}, model.ActionDelete, "f-1", "")

	entries, err := repo.Query(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLog_RecordFailureIsLoggedAndCounted(t *testing.T) {
	repo := new(mocks.MockAuditRepository)
	repo.On("Append", mock.Anything, mock.AnythingOfType("model.AuditEntry")).Return(errors.New("db down"))

	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)

	var buf bytes.Buffer
	l := New(repo, zerolog.New(&buf), m, 0)

	assert.NotPanics(t, func() {
		l.Record(context.Background(), model.Identity{ActorID: "alice"}, model.ActionDownload, "f-1", "report.pdf")
	})

	assert.Contains(t, buf.String(), "audit append failed")
	assert.Contains(t, buf.String(), `"error":"db down"`)
	assert.Contains(t, buf.String(), `"component":"audit"`)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "vault_audit_append_failures_total" {
			found = true
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
	repo.AssertExpectations(t)
}

func TestLog_QueryLimit(t *testing.T) {
	tests := []struct {
		name      string
		configure int
		requested int
		want      int
	}{
		{"default cap", 0, 0, 50},
		{"requested below cap", 20, 5, 5},
		{"requested above cap", 20, 100, 20},
		{"negative request", 20, -1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.MockAuditRepository)
			repo.On("Query", mock.Anything, "alice", tt.want).Return([]model.AuditEntry{}, nil)

			l := New(repo, zerolog.Nop(), nil, tt.configure)
			_, err := l.Query(context.Background(), "alice", tt.requested)
			assert.NoError(t, err)
			repo.AssertExpectations(t)
		})
	}
}
