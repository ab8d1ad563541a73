package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			wantCode: ErrCodeTimeout,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantCode: ErrCodeCanceled,
		},
		{
			name:     "wrapped deadline",
			err:      fmt.Errorf("query perfiles: %w", context.DeadlineExceeded),
			wantCode: ErrCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if GetCode(err) != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "pgx native", err: pgx.ErrNoRows},
		{name: "database/sql", err: sql.ErrNoRows},
		{name: "wrapped", err: fmt.Errorf("collect row: %w", pgx.ErrNoRows)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if !IsNotFound(err) {
				t.Errorf("MapDBError(%v) should be NotFound, got %v", tt.err, GetCode(err))
			}
		})
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "column name populated",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "perfiles_pkey",
				ColumnName:     "id",
			},
			wantField: "id",
		},
		{
			name: "field extracted from detail",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "perfiles_email_key",
				Detail:         `Key (email)=(vecina@consorcio10demayo.gob.ar) already exists.`,
			},
			wantField: "email",
		},
		{
			name: "multi-column detail kept verbatim",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: `Key (id, email)=(user-1, vecina@consorcio10demayo.gob.ar) already exists.`,
			},
			wantField: "id, email",
		},
		{
			name: "no column metadata",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "perfiles_pkey",
			},
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsConflict(err) {
				t.Errorf("MapDBError() should be Conflict, got %v", GetCode(err))
			}
			if field := GetField(err); field != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", field, tt.wantField)
			}
		})
	}
}

func TestMapDBError_ForeignKeyViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           pgerrcode.ForeignKeyViolation,
		ConstraintName: "perfiles_id_fkey",
		Detail:         `Key (id)=(user-1) is not present in table "users".`,
	}

	err := MapDBError(pgErr)
	if !IsForeignKey(err) {
		t.Errorf("MapDBError() should be ForeignKey, got %v", GetCode(err))
	}
	if !errors.Is(err, pgErr) {
		t.Error("MapDBError() should keep the pg error reachable through errors.Is")
	}
}

func TestMapDBError_ConstraintViolations(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "rol check violation",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.CheckViolation,
				ConstraintName: "perfiles_rol_check",
				ColumnName:     "rol",
			},
			wantField: "rol",
		},
		{
			name: "not null violation",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.NotNullViolation,
				ColumnName: "email",
			},
			wantField: "email",
		},
		{
			name: "check violation without column",
			pgErr: &pgconn.PgError{
				Code: pgerrcode.CheckViolation,
			},
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsValidation(err) {
				t.Errorf("MapDBError() should be Validation, got %v", GetCode(err))
			}
			if field := GetField(err); field != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", field, tt.wantField)
			}
		})
	}
}

func TestMapDBError_UnknownPgError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:    pgerrcode.SerializationFailure,
		Message: "could not serialize access",
	}
	if err := MapDBError(pgErr); !IsInternal(err) {
		t.Errorf("MapDBError() should be Internal for unmapped pg codes, got %v", GetCode(err))
	}
}

func TestMapDBError_WrappedPgError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:       pgerrcode.UniqueViolation,
		ColumnName: "id",
	}
	err := MapDBError(fmt.Errorf("insert perfil: %w", pgErr))
	if !IsConflict(err) {
		t.Errorf("MapDBError() should unwrap to Conflict, got %v", GetCode(err))
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	stdErr := errors.New("driver: bad connection")
	if err := MapDBError(stdErr); !errors.Is(err, stdErr) {
		t.Errorf("MapDBError() should return non-db errors unchanged, got %v", err)
	}
}

func TestUniqueViolationField(t *testing.T) {
	tests := []struct {
		name  string
		pgErr *pgconn.PgError
		want  string
	}{
		{
			name:  "column name wins over detail",
			pgErr: &pgconn.PgError{ColumnName: "id", Detail: `Key (email)=(x) already exists.`},
			want:  "id",
		},
		{
			name:  "detail fallback",
			pgErr: &pgconn.PgError{Detail: `Key (email)=(vecina@consorcio10demayo.gob.ar) already exists.`},
			want:  "email",
		},
		{
			name:  "detail without key clause",
			pgErr: &pgconn.PgError{Detail: "duplicate row"},
			want:  "",
		},
		{
			name:  "no metadata",
			pgErr: &pgconn.PgError{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := uniqueViolationField(tt.pgErr); got != tt.want {
				t.Errorf("uniqueViolationField() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSQLStateConstants(t *testing.T) {
	if UniqueViolationCode != "23505" {
		t.Errorf("UniqueViolationCode = %q, want 23505", UniqueViolationCode)
	}
	if ForeignKeyViolationCode != "23503" {
		t.Errorf("ForeignKeyViolationCode = %q, want 23503", ForeignKeyViolationCode)
	}
}
