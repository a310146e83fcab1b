package game

import (
	"codewords/codenames"
	"codewords/domain"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	ErrUnauthenticatedStr    = "unauthenticated"
	ErrUserNotFoundStr       = "user-not-found"
	ErrFailedToGetUserStr    = "failed-to-get-user"
	ErrFailedToCreateGameStr = "failed-to-create-game"
	ErrGameNotFoundStr       = "game-not-found"
	ErrUnknownStr            = "unknown-error"
)

const inviteQRSize = 256

type HandlerConfig struct {
	InviteBaseURL string
	CheckOrigin   func(r *http.Request) bool
}

type gameHandler struct {
	sessions      SessionStore
	records       GameRecords
	users         UserGetter
	registry      roomJoiner
	dealer        codenames.Dealer
	tickerCreator PeriodicTickerCreator
	inviteBaseURL string
	upgrader      websocket.Upgrader
}

func NewGameHandler(sessions SessionStore, records GameRecords, users UserGetter, registry roomJoiner, dealer codenames.Dealer, tickerCreator PeriodicTickerCreator, config HandlerConfig) *gameHandler {
	return &gameHandler{
		sessions:      sessions,
		records:       records,
		users:         users,
		registry:      registry,
		dealer:        dealer,
		tickerCreator: tickerCreator,
		inviteBaseURL: config.InviteBaseURL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
	}
}

// currentUser resolves the authenticated caller. It writes the error reply
// itself and returns false when the request cannot go on.
func (h *gameHandler) currentUser(ctx *gin.Context) (domain.User, bool) {
	id := ctx.GetString("id")
	if id == "" {
		ctx.String(http.StatusUnauthorized, ErrUnauthenticatedStr)
		return domain.User{}, false
	}

	user, err := h.users.GetUserById(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			ctx.String(http.StatusUnauthorized, ErrUserNotFoundStr)
			return domain.User{}, false
		}
		log.Error().Err(err).Str("user_id", id).Msg("failed to get user")
		ctx.String(http.StatusInternalServerError, ErrFailedToGetUserStr)
		return domain.User{}, false
	}
	return user, true
}

func (h *gameHandler) CreateGameHandler(ctx *gin.Context) {
	user, ok := h.currentUser(ctx)
	if !ok {
		return
	}

	reqCtx := ctx.Request.Context()
	gameId := uuid.NewString()

	if err := h.records.CreateGame(reqCtx, gameId, user.Id); err != nil {
		log.Error().Err(err).Str("user_id", user.Id).Msg("failed to create game record")
		ctx.String(http.StatusInternalServerError, ErrFailedToCreateGameStr)
		return
	}

	session := codenames.New(gameId, h.dealer)
	session.SetHost(codenames.Identity{Id: user.Id, Name: user.Username})
	if err := h.sessions.SetSession(reqCtx, session); err != nil {
		log.Error().Err(err).Str("session_id", gameId).Msg("failed to store new session")
		ctx.String(http.StatusInternalServerError, ErrFailedToCreateGameStr)
		return
	}

	log.Info().Str("session_id", gameId).Str("user_id", user.Id).Msg("game created")
	ctx.JSON(http.StatusCreated, gin.H{"gameId": gameId})
}

func (h *gameHandler) InviteQRHandler(ctx *gin.Context) {
	gameId := ctx.Param("id")

	exists, err := h.records.GameExists(ctx.Request.Context(), gameId)
	if err != nil {
		log.Error().Err(err).Str("session_id", gameId).Msg("failed to look up game")
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		return
	}
	if !exists {
		ctx.String(http.StatusNotFound, ErrGameNotFoundStr)
		return
	}

	png, err := qrcode.Encode(h.inviteBaseURL+gameId, qrcode.Medium, inviteQRSize)
	if err != nil {
		log.Error().Err(err).Str("session_id", gameId).Msg("failed to encode invite")
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		return
	}

	ctx.Data(http.StatusOK, "image/png", png)
}

func (h *gameHandler) WebsocketHandler(ctx *gin.Context) {
	user, ok := h.currentUser(ctx)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// the upgrader has already replied
		log.Debug().Err(err).Str("user_id", user.Id).Msg("websocket upgrade failed")
		return
	}

	socket := NewWebsocketConnection(conn)
	c := newClient(codenames.Identity{Id: user.Id, Name: user.Username}, h.registry, h.tickerCreator)
	c.logger.Info().Msg("connection opened")

	go c.WritePump(socket)
	go c.ReadPump(socket)
}

func HealthHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, "healthy")
}
