package integration

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Skotchmaster/cleanshop/internal/events"
	"github.com/Skotchmaster/cleanshop/internal/models"
	"github.com/Skotchmaster/cleanshop/internal/repo"
	"github.com/Skotchmaster/cleanshop/internal/service"
	pkgdb "github.com/Skotchmaster/cleanshop/pkg/db"
	"github.com/Skotchmaster/cleanshop/pkg/hash"
	"github.com/Skotchmaster/cleanshop/pkg/tokens"
)

type integrationEnv struct {
	db  *gorm.DB
	svc *service.AuthService
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	dsn := os.Getenv("CLEANSHOP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CLEANSHOP_TEST_DATABASE_URL is required for tests")
	}

	ctx := context.Background()
	db, err := pkgdb.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkgdb.Close(db) })

	require.NoError(t, repo.Migrate(db))
	r := repo.New(db)
	_, err = r.SeedRoles(ctx, models.Roles)
	require.NoError(t, err)

	iss, err := tokens.NewIssuer([]byte("test-jwt-secret"), "cleanshop", "cleanshop-clients", 15*time.Minute)
	require.NoError(t, err)

	return &integrationEnv{
		db: db,
		svc: &service.AuthService{
			UOW:    r,
			Hasher: hash.Bcrypt{Cost: bcrypt.MinCost},
			Tokens: iss,
			Events: events.Nop{},
		},
	}
}

func uniqueUsername() string {
	return "u_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func TestRefresh_ConcurrentReplayHasOneWinner(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()
	username := uniqueUsername()

	res, err := env.svc.Register(ctx, username, username+"@example.com", "Secret#1")
	require.NoError(t, err)
	require.True(t, res.OK())

	login, err := env.svc.Login(ctx, username, "Secret#1")
	require.NoError(t, err)
	require.True(t, login.IsAuthenticated)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		notActive int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := env.svc.Refresh(ctx, login.RefreshToken)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if out.IsAuthenticated {
				winners++
			} else if assert.ErrorIs(t, out.Reason, service.ErrTokenNotActive) {
				notActive++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, workers-1, notActive)

	var active int64
	require.NoError(t, env.db.Model(&models.RefreshToken{}).
		Joins("JOIN users ON users.id = refresh_tokens.user_id").
		Where("users.username = ? AND refresh_tokens.revoked IS NULL", username).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestRegister_ConcurrentCaseVariantsHaveOneWinner(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()
	username := uniqueUsername()

	variants := []string{username, strings.ToUpper(username), strings.ToUpper(username[:1]) + username[1:]}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		conflict int
	)
	start := make(chan struct{})
	for _, name := range variants {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			<-start
			res, err := env.svc.Register(ctx, name, name+"@example.com", "Secret#1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.OK() {
				created++
			} else if assert.ErrorIs(t, res.Reason, service.ErrConflict) {
				conflict++
			}
		}(name)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, len(variants)-1, conflict)
}

func TestLogin_ConcurrentFirstLoginsEachGetAWorkingToken(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()
	username := uniqueUsername()

	res, err := env.svc.Register(ctx, username, username+"@example.com", "Secret#1")
	require.NoError(t, err)
	require.True(t, res.OK())

	const workers = 4
	tokensOut := make([]string, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			out, err := env.svc.Login(ctx, username, "Secret#1")
			if assert.NoError(t, err) && assert.True(t, out.IsAuthenticated) {
				tokensOut[i] = out.RefreshToken
			}
		}(i)
	}
	close(start)
	wg.Wait()

	// racing logins may mint more than one token; each must refresh exactly once
	seen := map[string]bool{}
	for _, tok := range tokensOut {
		require.NotEmpty(t, tok)
		if seen[tok] {
			continue
		}
		seen[tok] = true

		out, err := env.svc.Refresh(ctx, tok)
		require.NoError(t, err)
		assert.True(t, out.IsAuthenticated)

		out, err = env.svc.Refresh(ctx, tok)
		require.NoError(t, err)
		assert.ErrorIs(t, out.Reason, service.ErrTokenNotActive)
	}
	assert.GreaterOrEqual(t, len(seen), 1)
	assert.LessOrEqual(t, len(seen), workers)
}
