package auth

import (
	"codewords/domain"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ErrMissingTokenStr          = "missing-token"
	ErrExpiredTokenStr          = "expired-token"
	ErrInvalidTokenStr          = "invalid-token"
	ErrServerTimeoutStr         = "server-timeout"
	ErrInvalidRequestFormatStr  = "bad-request-format"
	ErrInvalidCredentialsStr    = "invalid-credentials"
	ErrUnknownStr               = "unknown-error"
	ErrUsernameAlreadyExistsStr = "username-already-exists"
	ErrWeakPasswordStr          = "weak-password"
	ErrPasswordTooLongStr       = "password-too-long"
	ErrInvalidUsernameFormatStr = "invalid-username-format"
	ErrAccountCreatedButNoToken = "account-created-but-no-token"
	ErrUnauthenticatedStr       = "unauthenticated"
)

const (
	tokenCookie               = "token"
	statusClientClosedRequest = 499
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authHandler struct {
	authService  AuthService
	cookieMaxAge time.Duration
}

func NewAuthHandler(service AuthService, cookieMaxAge time.Duration) *authHandler {
	return &authHandler{authService: service, cookieMaxAge: cookieMaxAge}
}

// redactToken keeps the header, the claims and the first ten signature
// characters so a token can be recognised in logs but not replayed.
func redactToken(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return token
	}
	sig := []rune(parts[2])
	if len(sig) > 10 {
		parts[2] = string(sig[:10]) + strings.Repeat("*", len(sig)-10)
	}
	return strings.Join(parts, ".")
}

func requestLogger(ctx *gin.Context, event zerolog.Level) *zerolog.Event {
	return log.WithLevel(event).
		Str("ip", ctx.ClientIP()).
		Str("user_agent", ctx.Request.UserAgent())
}

func (ah *authHandler) setTokenCookie(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie(tokenCookie, token, int(ah.cookieMaxAge.Seconds()), "/", "", true, true)
}

// RequireAuthMiddleware rejects requests without a valid token cookie and
// stores the user id under "id". Tampered tokens are answered after penalty.
func (ah *authHandler) RequireAuthMiddleware(penalty time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := ctx.Cookie(tokenCookie)
		if err != nil || token == "" {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}

		id, err := ah.authService.VerifyToken(token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSigningAlg),
				errors.Is(err, domain.ErrInvalidTokenSignature),
				errors.Is(err, domain.ErrCorruptedToken):
				requestLogger(ctx, zerolog.WarnLevel).
					Err(err).
					Str("token", redactToken(token)).
					Msg("suspicious token")
				time.Sleep(penalty)
				ctx.String(http.StatusUnauthorized, ErrInvalidTokenStr)
				ctx.Abort()

			case errors.Is(err, domain.ErrExpiredToken):
				requestLogger(ctx, zerolog.DebugLevel).Msg("token expired")
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
				ctx.Abort()

			default:
				requestLogger(ctx, zerolog.ErrorLevel).
					Err(err).
					Str("token", redactToken(token)).
					Msg("token verification failed")
				ctx.String(http.StatusInternalServerError, ErrUnknownStr)
				ctx.Abort()
			}
			return
		}

		ctx.Set("id", id)
		ctx.Next()
	}
}

func (ah *authHandler) LoginHandler(ctx *gin.Context) {
	var body credentials
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		return
	}

	token, err := ah.authService.Login(ctx.Request.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrIncorrectPassword), errors.Is(err, domain.ErrUserNotFound):
			ctx.String(http.StatusUnauthorized, ErrInvalidCredentialsStr)
		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)
		case errors.Is(err, context.Canceled):
			ctx.Status(statusClientClosedRequest)
		default:
			requestLogger(ctx, zerolog.ErrorLevel).
				Err(err).
				Str("username", body.Username).
				Msg("login failed")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		return
	}

	ah.setTokenCookie(ctx, token)
	ctx.Status(http.StatusOK)
}

func (ah *authHandler) SignupHandler(ctx *gin.Context) {
	var body credentials
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		return
	}

	token, err := ah.authService.Signup(ctx.Request.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateUsername):
			ctx.String(http.StatusConflict, ErrUsernameAlreadyExistsStr)
		case errors.Is(err, ErrWeakPassword):
			ctx.String(http.StatusBadRequest, ErrWeakPasswordStr)
		case errors.Is(err, ErrPasswordTooLong):
			ctx.String(http.StatusBadRequest, ErrPasswordTooLongStr)
		case errors.Is(err, ErrInvalidUsernameFormat):
			ctx.String(http.StatusBadRequest, ErrInvalidUsernameFormatStr)
		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)
		case errors.Is(err, context.Canceled):
			ctx.Status(statusClientClosedRequest)
		case errors.Is(err, domain.UnexpectedTokenGenerationError):
			requestLogger(ctx, zerolog.ErrorLevel).
				Err(err).
				Str("username", body.Username).
				Msg("account created without token")
			ctx.String(http.StatusInternalServerError, ErrAccountCreatedButNoToken)
		default:
			requestLogger(ctx, zerolog.ErrorLevel).
				Err(err).
				Str("username", body.Username).
				Msg("signup failed")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		return
	}

	ah.setTokenCookie(ctx, token)
	ctx.Status(http.StatusCreated)
}

func (ah *authHandler) RefreshSessionHandler(ctx *gin.Context) {
	token, err := ctx.Cookie(tokenCookie)
	if err != nil || token == "" {
		ctx.String(http.StatusUnauthorized, ErrUnauthenticatedStr)
		return
	}

	id, err := ah.authService.VerifyToken(token)
	if err != nil {
		requestLogger(ctx, zerolog.WarnLevel).
			Err(err).
			Str("token", redactToken(token)).
			Msg("refresh with invalid token")
		ctx.String(http.StatusUnauthorized, ErrInvalidTokenStr)
		return
	}

	newToken, err := ah.authService.GenerateToken(id)
	if err != nil {
		requestLogger(ctx, zerolog.ErrorLevel).
			Err(err).
			Str("user_id", id).
			Msg("refresh token generation failed")
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		return
	}

	ah.setTokenCookie(ctx, newToken)
	ctx.Status(http.StatusOK)
}

func (ah *authHandler) LogoutHandler(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie(tokenCookie, "", -1, "/", "", true, true)
	ctx.Status(http.StatusOK)
}
