package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Guest-facing sign-in messages. Provider error codes are an implementation
// detail; the UI only ever sees this fixed set.
const (
	MsgPopupClosed     = "Has cerrado la ventana de inicio de sesión. Inténtalo de nuevo."
	MsgPopupBlocked    = "Tu navegador ha bloqueado la ventana de inicio de sesión. Permite las ventanas emergentes e inténtalo de nuevo."
	MsgNetworkFailure  = "No se pudo conectar. Comprueba tu conexión e inténtalo de nuevo."
	MsgRateLimited     = "Demasiados intentos. Espera un momento e inténtalo de nuevo."
	MsgAccountConflict = "Ya existe una cuenta con este correo y otro método de acceso."
	MsgSessionExpired  = "Tu sesión ha caducado. Inicia sesión de nuevo."
	MsgSignInFailed    = "No se pudo iniciar sesión. Por favor, inténtalo de nuevo."
)

// Error codes reported by the sign-in popup flow on the client.
var providerCodeMessages = map[string]string{
	"auth/popup-closed-by-user":                    MsgPopupClosed,
	"auth/cancelled-popup-request":                 MsgPopupClosed,
	"auth/popup-blocked":                           MsgPopupBlocked,
	"auth/network-request-failed":                  MsgNetworkFailure,
	"auth/too-many-requests":                       MsgRateLimited,
	"auth/account-exists-with-different-credential": MsgAccountConflict,
}

// SignInMessageForCode translates a provider error code into the guest-facing
// message. Unknown codes map to the generic failure message.
func SignInMessageForCode(code string) string {
	if message, ok := providerCodeMessages[strings.TrimSpace(code)]; ok {
		return message
	}
	return MsgSignInFailed
}

// SignInMessageForError translates a server-side verification failure into
// the guest-facing message. The full error stays in the logs.
func SignInMessageForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, jwt.ErrTokenExpired):
		return MsgSessionExpired
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return MsgNetworkFailure
	default:
		return MsgSignInFailed
	}
}
