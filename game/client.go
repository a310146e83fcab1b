package game

import (
	"codewords/codenames"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	outboxSize   = 256
	pingInterval = 30 * time.Second
	joinTimeout  = 10 * time.Second
)

// client is one websocket connection. The read pump owns room; Send and Close
// are safe from any goroutine.
type client struct {
	connId        string
	identity      codenames.Identity
	registry      roomJoiner
	tickerCreator PeriodicTickerCreator
	limiter       *rate.Limiter
	outbox        chan []byte
	room          *room
	logger        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(identity codenames.Identity, registry roomJoiner, tickerCreator PeriodicTickerCreator) *client {
	ctx, cancel := context.WithCancel(context.Background())
	connId := uuid.NewString()
	return &client{
		connId:        connId,
		identity:      identity,
		registry:      registry,
		tickerCreator: tickerCreator,
		limiter:       rate.NewLimiter(10, 20),
		outbox:        make(chan []byte, outboxSize),
		logger:        log.With().Str("conn_id", connId).Str("user_id", identity.Id).Logger(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (c *client) ConnId() string {
	return c.connId
}

func (c *client) Identity() codenames.Identity {
	return c.identity
}

// Send never blocks. A client that cannot keep up is disconnected.
func (c *client) Send(data []byte) {
	select {
	case c.outbox <- data:
	case <-c.ctx.Done():
	default:
		c.logger.Warn().Msg("outbox full, dropping connection")
		c.cancel()
	}
}

func (c *client) Close() {
	c.cancel()
}

func (c *client) ReadPump(socket WebsocketConnection) {
	defer c.cancel()
	defer func() {
		if c.room != nil {
			c.room.Leave(c)
		}
	}()

	for {
		data, err := socket.Read()
		if err != nil {
			c.logger.Info().Err(err).Msg("connection closed")
			return
		}
		if c.ctx.Err() != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Send(errorFrame(fmt.Errorf("%w: %w", ErrBadPayload, err), nil))
			continue
		}
		if !c.limiter.Allow() {
			c.Send(errorFrame(ErrRateLimited, frame.Ack))
			continue
		}

		if err := c.dispatch(frame); err != nil {
			c.logger.Debug().Err(err).Str("event", frame.Event).Msg("event rejected")
			c.Send(errorFrame(err, frame.Ack))
		}
	}
}

func (c *client) dispatch(frame inboundFrame) error {
	if frame.Event == EventJoinGame {
		return c.join(frame)
	}
	if !roomEvents[frame.Event] {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
	if c.room == nil {
		return ErrNotJoined
	}
	return c.room.Send(c.ctx, roomEvent{from: c, event: frame.Event, data: frame.Data, ack: frame.Ack})
}

func (c *client) join(frame inboundFrame) error {
	if c.room != nil {
		return ErrAlreadyJoined
	}

	var ref sessionRef
	if err := json.Unmarshal(frame.Data, &ref); err != nil {
		// a bare string is the session id
		var id string
		if json.Unmarshal(frame.Data, &id) != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		ref.SessionId = id
	}
	if ref.id() == "" {
		return fmt.Errorf("%w: missing sessionId", ErrBadPayload)
	}

	ctx, cancel := context.WithTimeout(c.ctx, joinTimeout)
	defer cancel()

	r, err := c.registry.Join(ctx, ref.id(), c)
	if err != nil {
		return err
	}
	c.room = r
	return nil
}

func (c *client) WritePump(socket WebsocketConnection) {
	ping, stopPing := c.tickerCreator.Create(pingInterval)
	defer stopPing()
	defer socket.Close()

	for {
		select {
		case data := <-c.outbox:
			if err := socket.Write(data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				c.cancel()
				return
			}
		case <-ping:
			if err := socket.Ping(); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
