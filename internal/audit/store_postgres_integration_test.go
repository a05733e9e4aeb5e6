//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vitaex/internal/audit"
	"vitaex/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *audit.PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.ctx = context.Background()
	s.store = audit.NewPostgresStore(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "audit_log"))
}

func (s *PostgresStoreSuite) TestAppendAndList() {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
		Timestamp:     base,
		Action:        "twin.updated",
		UserID:        "u1",
		Actor:         "system",
		Details:       map[string]any{"version": float64(1)},
		CorrelationID: "corr-1",
	}))
	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
		Timestamp:     base.Add(time.Minute),
		Action:        "consent.denied",
		UserID:        "u1",
		Actor:         "system",
		CorrelationID: "corr-2",
	}))
	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
		Timestamp: base,
		Action:    "twin.updated",
		UserID:    "u2",
		Actor:     "system",
	}))

	entries, err := s.store.ListByUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	// Newest first.
	s.Equal("consent.denied", entries[0].Action)
	s.Equal("corr-2", entries[0].CorrelationID)
	s.Equal("twin.updated", entries[1].Action)
	s.Equal(float64(1), entries[1].Details["version"])

	other, err := s.store.ListByUser(s.ctx, "u2")
	s.Require().NoError(err)
	s.Len(other, 1)
}

func (s *PostgresStoreSuite) TestListUnknownUser() {
	entries, err := s.store.ListByUser(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(entries)
}
