//go:build integration

package tokenstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"gatehouse/internal/tokenstore"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *tokenstore.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = tokenstore.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	written := tokenstore.Credentials{Token: "tok-redis", UserID: "77", Role: "assistant"}

	s.Require().NoError(s.store.Save(ctx, written))

	got, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Equal(written, *got)
}

func (s *RedisStoreSuite) TestLoadEmpty() {
	_, err := s.store.Load(context.Background())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestClear() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, tokenstore.Credentials{Token: "tok", UserID: "1", Role: "user"}))

	s.Require().NoError(s.store.Clear(ctx))
	_, err := s.store.Load(ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Clear(ctx))
}

func (s *RedisStoreSuite) TestCustomKeyIsolation() {
	ctx := context.Background()
	other := tokenstore.NewRedis(s.redis.Client, tokenstore.WithKey("gatehouse:credentials:kiosk"))

	s.Require().NoError(s.store.Save(ctx, tokenstore.Credentials{Token: "front", UserID: "1", Role: "reception"}))
	s.Require().NoError(other.Save(ctx, tokenstore.Credentials{Token: "kiosk", UserID: "2", Role: "user"}))

	front, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Equal("front", front.Token)

	kiosk, err := other.Load(ctx)
	s.Require().NoError(err)
	s.Equal("kiosk", kiosk.Token)
}
