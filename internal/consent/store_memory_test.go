package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestCheckWithoutGrant() {
	ok, err := s.store.Check(s.ctx, "u1", PurposePersonalization)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *InMemoryStoreSuite) TestGrantThenCheck() {
	s.Require().NoError(s.store.Grant(s.ctx, Record{
		UserID:    "u1",
		Purpose:   PurposePersonalization,
		GrantedAt: time.Now(),
	}))

	ok, err := s.store.Check(s.ctx, "u1", PurposePersonalization)
	s.Require().NoError(err)
	s.True(ok)

	s.Run("purpose binding", func() {
		ok, err := s.store.Check(s.ctx, "u1", PurposeResearch)
		s.Require().NoError(err)
		s.False(ok, "a personalization grant must not cover research")
	})

	s.Run("other user unaffected", func() {
		ok, err := s.store.Check(s.ctx, "u2", PurposePersonalization)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *InMemoryStoreSuite) TestRevoke() {
	s.Require().NoError(s.store.Grant(s.ctx, Record{
		UserID:    "u1",
		Purpose:   PurposePersonalization,
		GrantedAt: time.Now(),
	}))
	s.Require().NoError(s.store.Grant(s.ctx, Record{
		UserID:    "u1",
		Purpose:   PurposeResearch,
		GrantedAt: time.Now(),
	}))

	s.Require().NoError(s.store.Revoke(s.ctx, "u1", PurposePersonalization, time.Now().Add(-time.Second)))

	ok, err := s.store.Check(s.ctx, "u1", PurposePersonalization)
	s.Require().NoError(err)
	s.False(ok)

	// Selective revocation leaves the other purpose untouched.
	ok, err = s.store.Check(s.ctx, "u1", PurposeResearch)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *InMemoryStoreSuite) TestExpiredGrant() {
	s.Require().NoError(s.store.Grant(s.ctx, Record{
		UserID:    "u1",
		Purpose:   PurposePersonalization,
		GrantedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	ok, err := s.store.Check(s.ctx, "u1", PurposePersonalization)
	s.Require().NoError(err)
	s.False(ok)
}

func TestRecordIsActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{"open-ended grant", Record{GrantedAt: past}, true},
		{"not yet expired", Record{GrantedAt: past, ExpiresAt: future}, true},
		{"expired", Record{GrantedAt: past, ExpiresAt: past}, false},
		{"revoked", Record{GrantedAt: past, RevokedAt: &past}, false},
		{"revocation in the future", Record{GrantedAt: past, RevokedAt: &future}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.IsActive(now); got != tt.want {
				t.Fatalf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}
