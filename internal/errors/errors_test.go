package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "perfil not found",
			},
			want: "perfil not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeUnavailable,
				Message: "exchange code",
				Cause:   errors.New("connection refused"),
			},
			want: "exchange code: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := &AppError{
		Code:    ErrCodeUnavailable,
		Message: "token endpoint",
		Cause:   cause,
	}

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		wantCode  ErrorCode
		wantMsg   string
		wantField string
	}{
		{
			name:     "NotFound",
			err:      NotFound("perfil not found"),
			wantCode: ErrCodeNotFound,
			wantMsg:  "perfil not found",
		},
		{
			name:     "NotFoundf",
			err:      NotFoundf("perfil %s not found", "user-1"),
			wantCode: ErrCodeNotFound,
			wantMsg:  "perfil user-1 not found",
		},
		{
			name:     "Conflict",
			err:      Conflict("perfil already exists"),
			wantCode: ErrCodeConflict,
			wantMsg:  "perfil already exists",
		},
		{
			name:     "Conflictf",
			err:      Conflictf("perfil %s already exists", "user-1"),
			wantCode: ErrCodeConflict,
			wantMsg:  "perfil user-1 already exists",
		},
		{
			name:     "Validation",
			err:      Validation("email is required"),
			wantCode: ErrCodeValidation,
			wantMsg:  "email is required",
		},
		{
			name:     "Validationf",
			err:      Validationf("role %q is not recognised", "regador"),
			wantCode: ErrCodeValidation,
			wantMsg:  `role "regador" is not recognised`,
		},
		{
			name:      "ValidationField",
			err:       ValidationField("email", "malformed address"),
			wantCode:  ErrCodeValidation,
			wantMsg:   "malformed address",
			wantField: "email",
		},
		{
			name:     "ForeignKey",
			err:      ForeignKey("referenced user does not exist"),
			wantCode: ErrCodeForeignKey,
			wantMsg:  "referenced user does not exist",
		},
		{
			name:     "Unauthorized",
			err:      Unauthorized("session expired"),
			wantCode: ErrCodeUnauthorized,
			wantMsg:  "session expired",
		},
		{
			name:     "Unauthorizedf",
			err:      Unauthorizedf("token rejected: %s", "bad signature"),
			wantCode: ErrCodeUnauthorized,
			wantMsg:  "token rejected: bad signature",
		},
		{
			name:     "Forbidden",
			err:      Forbidden("rol operador required"),
			wantCode: ErrCodeForbidden,
			wantMsg:  "rol operador required",
		},
		{
			name:     "RateLimited",
			err:      RateLimited("too many magic link requests"),
			wantCode: ErrCodeRateLimited,
			wantMsg:  "too many magic link requests",
		},
		{
			name:     "Provider",
			err:      Provider("Invalid login credentials"),
			wantCode: ErrCodeProvider,
			wantMsg:  "Invalid login credentials",
		},
		{
			name:     "Providerf",
			err:      Providerf("otp verify failed: %s", "expired"),
			wantCode: ErrCodeProvider,
			wantMsg:  "otp verify failed: expired",
		},
		{
			name:     "Unavailable",
			err:      Unavailable("auth endpoint unreachable"),
			wantCode: ErrCodeUnavailable,
			wantMsg:  "auth endpoint unreachable",
		},
		{
			name:     "Internal",
			err:      Internal("snapshot encode failed"),
			wantCode: ErrCodeInternal,
			wantMsg:  "snapshot encode failed",
		},
		{
			name:     "Internalf",
			err:      Internalf("unexpected state %q", "loading"),
			wantCode: ErrCodeInternal,
			wantMsg:  `unexpected state "loading"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
			if tt.err.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", tt.err.Field, tt.wantField)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("tls handshake timeout")
	err := Wrap(cause, ErrCodeUnavailable, "token refresh")

	if err.Code != ErrCodeUnavailable {
		t.Errorf("Wrap().Code = %v, want %v", err.Code, ErrCodeUnavailable)
	}
	if err.Message != "token refresh" {
		t.Errorf("Wrap().Message = %v, want %v", err.Message, "token refresh")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Wrap() should keep %v reachable through errors.Is", cause)
	}
}

func TestWrapf(t *testing.T) {
	cause := errors.New("401")
	err := Wrapf(cause, ErrCodeUnauthorized, "verify token for %s", "user-1")

	if err.Code != ErrCodeUnauthorized {
		t.Errorf("Wrapf().Code = %v, want %v", err.Code, ErrCodeUnauthorized)
	}
	if err.Message != "verify token for user-1" {
		t.Errorf("Wrapf().Message = %v, want %v", err.Message, "verify token for user-1")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Wrapf() should keep the cause reachable through errors.Is")
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "ignored"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
	if err := Wrapf(nil, ErrCodeInternal, "ignored %d", 1); err != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", err)
	}
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name      string
		predicate func(error) bool
		match     error
	}{
		{"IsNotFound", IsNotFound, NotFound("perfil not found")},
		{"IsConflict", IsConflict, Conflict("perfil already exists")},
		{"IsValidation", IsValidation, ValidationField("email", "malformed")},
		{"IsForeignKey", IsForeignKey, ForeignKey("user vanished")},
		{"IsUnauthorized", IsUnauthorized, Unauthorized("session expired")},
		{"IsForbidden", IsForbidden, Forbidden("rol admin required")},
		{"IsRateLimited", IsRateLimited, RateLimited("throttled")},
		{"IsProvider", IsProvider, Provider("User already registered")},
		{"IsUnavailable", IsUnavailable, Unavailable("gateway down")},
		{"IsInternal", IsInternal, Internal("boom")},
		{"IsTimeout", IsTimeout, &AppError{Code: ErrCodeTimeout, Message: "deadline"}},
		{"IsCanceled", IsCanceled, &AppError{Code: ErrCodeCanceled, Message: "canceled"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.predicate(tt.match) {
				t.Errorf("%s(%v) = false, want true", tt.name, tt.match)
			}
			// Predicates must see through fmt.Errorf wrapping.
			wrapped := fmt.Errorf("sync profile: %w", tt.match)
			if !tt.predicate(wrapped) {
				t.Errorf("%s(wrapped) = false, want true", tt.name)
			}
			if tt.predicate(errors.New("plain error")) {
				t.Errorf("%s(plain error) = true, want false", tt.name)
			}
			if tt.predicate(nil) {
				t.Errorf("%s(nil) = true, want false", tt.name)
			}
		})
	}
}

func TestCodePredicates_DoNotCrossMatch(t *testing.T) {
	if IsNotFound(Conflict("perfil already exists")) {
		t.Error("IsNotFound matched a conflict error")
	}
	if IsConflict(NotFound("perfil not found")) {
		t.Error("IsConflict matched a not-found error")
	}
	if IsUnauthorized(Forbidden("rol admin required")) {
		t.Error("IsUnauthorized matched a forbidden error")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "app error",
			err:  NotFound("perfil not found"),
			want: ErrCodeNotFound,
		},
		{
			name: "wrapped app error",
			err:  fmt.Errorf("initialize: %w", Unavailable("gateway down")),
			want: ErrCodeUnavailable,
		},
		{
			name: "standard error",
			err:  errors.New("plain error"),
			want: "",
		},
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetField(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation field error",
			err:  ValidationField("email", "malformed address"),
			want: "email",
		},
		{
			name: "wrapped field error",
			err:  fmt.Errorf("insert perfil: %w", ValidationField("rol", "rejected")),
			want: "rol",
		},
		{
			name: "error without field",
			err:  NotFound("perfil not found"),
			want: "",
		},
		{
			name: "standard error",
			err:  errors.New("plain error"),
			want: "",
		},
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetField(tt.err); got != tt.want {
				t.Errorf("GetField() = %v, want %v", got, tt.want)
			}
		})
	}
}
