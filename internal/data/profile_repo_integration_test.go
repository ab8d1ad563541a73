package data

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/testutil"
)

func TestProfileRepo_Integration_InsertAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)
		ctx := context.Background()

		id := uuid.NewString()
		err := repo.Insert(ctx, domainauth.Profile{
			ID:     id,
			Email:  fmt.Sprintf("vecina-%s@example.com", id[:8]),
			Nombre: "Vecina Canalera",
			Rol:    domainauth.RoleCiudadano,
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "Vecina Canalera", got.Nombre)
		assert.Equal(t, domainauth.RoleCiudadano, got.Rol)
	})
}

func TestProfileRepo_Integration_GetMissing(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)

		_, err := repo.Get(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestProfileRepo_Integration_DuplicateInsert(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)
		ctx := context.Background()

		p := domainauth.Profile{
			ID:    uuid.NewString(),
			Email: "duplicada@example.com",
			Rol:   domainauth.RoleCiudadano,
		}
		require.NoError(t, repo.Insert(ctx, p))

		err := repo.Insert(ctx, p)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestProfileRepo_Integration_InvalidRoleCollapses(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)
		ctx := context.Background()

		id := uuid.NewString()
		err := repo.Insert(ctx, domainauth.Profile{
			ID:    id,
			Email: "rol-raro@example.com",
			Rol:   domainauth.Role("superuser"),
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domainauth.RoleCiudadano, got.Rol)
	})
}

// TestProfileRepo_Integration_ConcurrentInsert exercises the first-login
// race: several tabs insert the same profile and exactly one wins.
func TestProfileRepo_Integration_ConcurrentInsert(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)
		ctx := context.Background()

		p := domainauth.Profile{
			ID:    uuid.NewString(),
			Email: "carrera@example.com",
			Rol:   domainauth.RoleCiudadano,
		}

		const workers = 8
		funcs := make([]func() error, workers)
		for i := 0; i < workers; i++ {
			funcs[i] = func() error { return repo.Insert(ctx, p) }
		}

		var wins, conflicts int
		for _, err := range testutil.RunConcurrent(funcs...) {
			switch {
			case err == nil:
				wins++
			case apperrors.IsConflict(err):
				conflicts++
			default:
				t.Fatalf("unexpected insert error: %v", err)
			}
		}

		assert.Equal(t, 1, wins)
		assert.Equal(t, workers-1, conflicts)

		got, err := repo.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "carrera@example.com", got.Email)
	})
}
