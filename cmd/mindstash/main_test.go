package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/mindstash/internal/model"
)

func TestRulesCommandPrintsCatalog(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"rules"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "no_nsfw")
	assert.Contains(t, out.String(), "Avoid Duplicates")
}

func TestTokenCommandRequiresUser(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	assert.Error(t, root.Execute())
}

func TestTokenCommandMintsToken(t *testing.T) {
	t.Setenv("MINDSTASH_JWT_SECRET", "0123456789abcdef-secret")
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", "student", "--ttl", "1h"})

	require.NoError(t, root.Execute())
	assert.Equal(t, 2, bytes.Count(out.Bytes(), []byte(".")))
}

func TestTestEnvAddsComposeDatabase(t *testing.T) {
	env := testEnv([]string{"PATH=/bin"}, composeDatabaseURL)
	assert.Contains(t, env, testDatabaseEnv+"="+composeDatabaseURL)

	chosen := []string{testDatabaseEnv + "=postgres://elsewhere/db"}
	assert.Equal(t, chosen, testEnv(chosen, composeDatabaseURL))

	empty := []string{testDatabaseEnv + "="}
	assert.Contains(t, testEnv(empty, composeDatabaseURL), testDatabaseEnv+"="+composeDatabaseURL)
}

func TestWaitForDatabaseRetriesUntilReady(t *testing.T) {
	attempts := 0
	connect := func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return &pgxpool.Pool{}, nil
	}
	pool, err := waitForDatabase(context.Background(), composeDatabaseURL, 5*time.Second, connect)
	require.NoError(t, err)
	assert.NotNil(t, pool)
	assert.Equal(t, 3, attempts)
}

func TestWaitForDatabaseGivesUp(t *testing.T) {
	connect := func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
		return nil, errors.New("connection refused")
	}
	_, err := waitForDatabase(context.Background(), composeDatabaseURL, 300*time.Millisecond, connect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type seededUsers struct {
	users []model.User
}

func (s *seededUsers) UpsertUser(_ context.Context, u *model.User) error {
	s.users = append(s.users, *u)
	return nil
}

func TestSeedCreatesStudentAndModerator(t *testing.T) {
	var out bytes.Buffer
	store := &seededUsers{}
	require.NoError(t, seed(context.Background(), store, &out))

	require.Len(t, store.users, 2)
	assert.Equal(t, model.RoleModerator, store.users[1].Role)
	for _, u := range store.users {
		assert.NoError(t, model.ValidateAcademic(u.Program, u.Branch, u.Semester))
	}
	assert.Contains(t, out.String(), "seeded moderator")
}
