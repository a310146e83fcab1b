package game

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"time"
)

type SessionStore interface {
	GetSession(ctx context.Context, id string) (*codenames.Session, error)
	SetSession(ctx context.Context, session *codenames.Session) error
	DeleteSession(ctx context.Context, id string) error
}

type GameRecords interface {
	CreateGame(ctx context.Context, gameId, hostId string) error
	GameExists(ctx context.Context, gameId string) (bool, error)
}

type UserGetter interface {
	GetUserById(ctx context.Context, id string) (domain.User, error)
}

type WebsocketConnection interface {
	Close()
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

// PeriodicTickerCreator returns a ticking channel and the func that stops it.
type PeriodicTickerCreator interface {
	Create(duration time.Duration) (<-chan time.Time, func())
}

// member is what a room needs from a connection.
type member interface {
	ConnId() string
	Identity() codenames.Identity
	Send(data []byte)
	Close()
}

type roomJoiner interface {
	Join(ctx context.Context, sessionId string, m member) (*room, error)
}
