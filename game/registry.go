package game

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type RegistryConfig struct {
	// TurnDuration is the number of TickInterval periods in one turn.
	TurnDuration int
	TickInterval time.Duration
}

// Registry owns one room goroutine per session id that has connected members.
// A room lives from its first join until it has torn down after its last leave.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
	wg     sync.WaitGroup

	records       GameRecords
	store         SessionStore
	dealer        codenames.Dealer
	tickerCreator PeriodicTickerCreator
	config        RegistryConfig
}

func NewRegistry(records GameRecords, store SessionStore, dealer codenames.Dealer, tickerCreator PeriodicTickerCreator, config RegistryConfig) *Registry {
	return &Registry{
		rooms:         make(map[string]*room),
		records:       records,
		store:         store,
		dealer:        dealer,
		tickerCreator: tickerCreator,
		config:        config,
	}
}

// Join registers m in the room of sessionId, starting the room if needed.
// The session must have a durable game record.
func (rg *Registry) Join(ctx context.Context, sessionId string, m member) (*room, error) {
	exists, err := rg.records.GameExists(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrGameNotFound
	}

	r, err := rg.acquire(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	req := joinRequest{member: m, errChan: make(chan error, 1)}
	select {
	case r.joins <- req:
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		if rg.release(r) {
			r.stop()
		}
		return nil, ctx.Err()
	}

	select {
	case err = <-req.errChan:
	case <-r.done:
		// a room that rejected the last join closes right after answering
		select {
		case err = <-req.errChan:
		default:
			err = ErrRoomClosed
		}
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// acquire returns the live room of sessionId with one more reference. A room
// whose last member just left stays registered until it has finished tearing
// down, and acquire waits for it so two rooms never share a session.
func (rg *Registry) acquire(ctx context.Context, sessionId string) (*room, error) {
	for {
		rg.mu.Lock()
		if rg.closed {
			rg.mu.Unlock()
			return nil, ErrRegistryClosed
		}

		r, ok := rg.rooms[sessionId]
		if ok && r.refs == 0 {
			rg.mu.Unlock()
			select {
			case <-r.done:
				rg.forget(r)
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if !ok {
			r = newRoom(sessionId, roomConfig{
				store:         rg.store,
				dealer:        rg.dealer,
				tickerCreator: rg.tickerCreator,
				tickInterval:  rg.config.TickInterval,
				turnDuration:  rg.config.TurnDuration,
				release:       rg.release,
			})
			rg.rooms[sessionId] = r
			rg.wg.Add(1)
			go func() {
				defer rg.wg.Done()
				r.run()
				rg.forget(r)
			}()
		}
		r.refs++
		rg.mu.Unlock()
		return r, nil
	}
}

// release drops one reference to r. It reports true when nobody is left; the
// room then tears down and is forgotten once its goroutine has returned.
func (rg *Registry) release(r *room) bool {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	r.refs--
	return r.refs <= 0
}

func (rg *Registry) forget(r *room) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if rg.rooms[r.id] == r {
		delete(rg.rooms, r.id)
	}
}

func (rg *Registry) RoomCount() int {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	return len(rg.rooms)
}

// Shutdown stops every room, which stops its timer and closes its members,
// and waits for the room goroutines until ctx expires.
func (rg *Registry) Shutdown(ctx context.Context) error {
	rg.mu.Lock()
	rg.closed = true
	for _, r := range rg.rooms {
		r.stop()
	}
	count := len(rg.rooms)
	rg.rooms = make(map[string]*room)
	rg.mu.Unlock()

	log.Info().Int("rooms", count).Msg("stopping rooms")

	done := make(chan struct{})
	go func() {
		rg.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
