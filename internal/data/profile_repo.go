package data

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/consorcio10demayo/canalero-auth/internal/data/pgxutil"
	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// ProfileRepo provides database operations for the perfiles table. It is
// used by deployments that talk to Postgres directly instead of going
// through the hosted data API.
type ProfileRepo struct {
	DB  *sql.DB
	now func() time.Time
}

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, now: time.Now}
}

// Get loads a profile by provider user ID.
func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domainauth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user ID is required")
	}

	var out domainauth.Profile
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, email, nombre, rol
			FROM perfiles
			WHERE id = $1
		`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Insert creates a profile row. The row id doubles as the provider user ID,
// so a duplicate insert surfaces as a conflict.
func (r *ProfileRepo) Insert(ctx context.Context, p domainauth.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile ID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("profile email is required")
	}

	rol := p.Rol
	if !rol.Valid() {
		rol = domainauth.RoleCiudadano
	}

	createdAt := r.now().UTC()
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO perfiles (id, email, nombre, rol, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			strings.TrimSpace(p.ID),
			strings.TrimSpace(p.Email),
			strings.TrimSpace(p.Nombre),
			string(rol),
			createdAt,
		)
		return err
	}); err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
