package errors

import (
	"errors"
	"strings"
)

// User-facing messages are Spanish; identifiers and log text stay English.
// Strings are kept accent-free so they survive any template encoding.
const (
	MsgInvalidEmail    = "Ingresa un correo electronico valido"
	MsgMagicLinkSent   = "Te enviamos un enlace para verificar tu correo"
	MsgRateLimited     = "Demasiados intentos. Espera unos minutos e intenta de nuevo"
	MsgProviderDown    = "No pudimos contactar al servicio de autenticacion. Intenta mas tarde"
	MsgInvalidToken    = "Token invalido o expirado"
	MsgForbidden       = "No tienes permisos para realizar esta accion"
	MsgBadCredentials  = "Correo o contrasena incorrectos"
	MsgAlreadySignedUp = "Este correo ya esta registrado. Proba iniciar sesion"
	MsgSignedOut       = "Cerraste sesion correctamente"
	MsgGeneric         = "Ocurrio un error inesperado. Intenta nuevamente"
)

// providerDictionary maps substrings of known provider error messages to
// their Spanish translation. Matching is case-insensitive and partial, since
// the provider wording shifts between releases.
var providerDictionary = []struct {
	fragment string
	message  string
}{
	{"rate limit", MsgRateLimited},
	{"too many requests", MsgRateLimited},
	{"already registered", MsgAlreadySignedUp},
	{"invalid login credentials", MsgBadCredentials},
	{"invalid_credentials", MsgBadCredentials},
	{"token is expired", MsgInvalidToken},
	{"invalid token", MsgInvalidToken},
	{"signups not allowed", "El registro esta deshabilitado en este momento"},
	{"email not confirmed", "Confirma tu correo antes de iniciar sesion"},
}

// TranslateProviderMessage returns the Spanish translation for a raw provider
// message when a dictionary entry matches, and reports whether it did.
func TranslateProviderMessage(raw string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return "", false
	}
	for _, entry := range providerDictionary {
		if strings.Contains(needle, entry.fragment) {
			return entry.message, true
		}
	}
	return "", false
}

// UserMessage resolves an error to the Spanish text shown to the user.
// Provider errors fall back to the raw provider wording when no dictionary
// entry matches, so a failure is never silently flattened into the generic
// message while the provider said something more specific.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return MsgGeneric
	}

	switch appErr.Code {
	case ErrCodeValidation:
		if appErr.Field == "email" {
			return MsgInvalidEmail
		}
		return MsgGeneric
	case ErrCodeRateLimited:
		return MsgRateLimited
	case ErrCodeUnauthorized:
		return MsgInvalidToken
	case ErrCodeForbidden:
		return MsgForbidden
	case ErrCodeTimeout, ErrCodeCanceled, ErrCodeUnavailable:
		return MsgProviderDown
	case ErrCodeProvider:
		if translated, ok := TranslateProviderMessage(appErr.Message); ok {
			return translated
		}
		if msg := strings.TrimSpace(appErr.Message); msg != "" {
			return msg
		}
		return MsgProviderDown
	default:
		return MsgGeneric
	}
}
