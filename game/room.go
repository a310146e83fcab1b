package game

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	chatLogLimit = 200
	storeTimeout = 5 * time.Second
)

type roomEvent struct {
	from  member
	event string
	data  json.RawMessage
	ack   *int
}

type joinRequest struct {
	member  member
	errChan chan error
}

type roomConfig struct {
	store         SessionStore
	dealer        codenames.Dealer
	tickerCreator PeriodicTickerCreator
	tickInterval  time.Duration
	turnDuration  int
	release       func(*room) bool
}

// room serializes every load, mutate, persist and broadcast cycle of one
// session. Only run touches members, chat and timer.
type room struct {
	id      string
	store   SessionStore
	dealer  codenames.Dealer
	release func(*room) bool
	logger  zerolog.Logger

	// guarded by the registry lock
	refs int

	members map[string]member
	chat    []ChatEntry
	timer   *turnTimer

	joins    chan joinRequest
	inbox    chan roomEvent
	leaves   chan member
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func newRoom(id string, cfg roomConfig) *room {
	return &room{
		id:      id,
		store:   cfg.store,
		dealer:  cfg.dealer,
		release: cfg.release,
		logger:  log.With().Str("session_id", id).Logger(),
		members: make(map[string]member),
		chat:    make([]ChatEntry, 0),
		timer:   newTurnTimer(cfg.tickerCreator, cfg.tickInterval, cfg.turnDuration),
		joins:   make(chan joinRequest),
		inbox:   make(chan roomEvent, 256),
		leaves:  make(chan member, 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *room) run() {
	defer close(r.done)
	r.logger.Info().Msg("room opened")

	for {
		select {
		case req := <-r.joins:
			if r.handleJoin(req) {
				return
			}
		case ev := <-r.inbox:
			r.handleEvent(ev)
		case m := <-r.leaves:
			if r.handleLeave(m) {
				return
			}
		case <-r.timer.C():
			r.handleTick()
		case <-r.quit:
			r.close()
			return
		}
	}
}

// Send queues an event from a member.
func (r *room) Send(ctx context.Context, ev roomEvent) error {
	select {
	case r.inbox <- ev:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *room) Leave(m member) {
	select {
	case r.leaves <- m:
	case <-r.done:
	}
}

func (r *room) stop() {
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *room) close() {
	r.timer.Stop()
	for _, m := range r.members {
		m.Close()
	}
	r.logger.Info().Int("members", len(r.members)).Msg("room closed")
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// handleJoin reports true when the room has shut itself down.
func (r *room) handleJoin(req joinRequest) bool {
	identity := req.member.Identity()

	ctx, cancel := storeContext()
	defer cancel()

	session, err := r.store.GetSession(ctx, r.id)
	if err == nil {
		session.Join(identity)
		err = r.store.SetSession(ctx, session)
	}
	if err != nil {
		r.logFailure(err, EventJoinGame, req.member)
		req.errChan <- err
		if r.release(r) {
			r.close()
			return true
		}
		return false
	}

	r.members[req.member.ConnId()] = req.member
	req.errChan <- nil
	r.logger.Info().
		Str("conn_id", req.member.ConnId()).
		Str("user_id", identity.Id).
		Msg("member joined")

	r.broadcast(EventUpdatePlayers, session)
	alert := r.appendChat(ChatEntry{Sender: alertSender, Message: identity.Name + " joined the game"})
	r.broadcastExcept(req.member, EventNewMessage, alert)
	req.member.Send(encodeFrame(EventMessages, r.chat, nil))
	return false
}

// handleLeave reports true when the last member left. The session is then
// considered abandoned and removed from the store.
func (r *room) handleLeave(m member) bool {
	if _, ok := r.members[m.ConnId()]; !ok {
		return false
	}
	delete(r.members, m.ConnId())
	r.logger.Info().
		Str("conn_id", m.ConnId()).
		Str("user_id", m.Identity().Id).
		Msg("member left")

	alert := r.appendChat(ChatEntry{Sender: alertSender, Message: m.Identity().Name + " left the game"})
	r.broadcast(EventNewMessage, alert)

	if !r.release(r) {
		return false
	}

	r.timer.Stop()
	ctx, cancel := storeContext()
	defer cancel()
	if err := r.store.DeleteSession(ctx, r.id); err != nil {
		r.logger.Error().Err(err).Msg("failed to delete abandoned session")
	}
	r.logger.Info().Msg("room abandoned")
	return true
}

func (r *room) handleEvent(ev roomEvent) {
	var err error
	switch ev.event {
	case EventStartGame:
		err = r.handleStartGame(ev)
	case EventInitGame:
		err = r.handleInitGame(ev)
	case EventMessage:
		err = r.handleMessage(ev)
	case EventMove:
		err = r.handleMove(ev)
	case EventChangeTurn:
		err = r.handleChangeTurn(ev)
	case EventEndGame:
		err = r.handleEndGame(ev)
	case EventPlayAgain:
		err = r.handlePlayAgain(ev)
	case EventFetchGame:
		err = r.handleFetchGame(ev)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.event)
	}

	if err != nil {
		r.logFailure(err, ev.event, ev.from)
		ev.from.Send(errorFrame(err, ev.ack))
	}
}

func (r *room) logFailure(err error, event string, m member) {
	e := r.logger.Debug()
	if name := classify(err).Name; name == StoreUnavailableError || name == UnknownError {
		e = r.logger.Error()
	}
	e.Err(err).
		Str("event", event).
		Str("conn_id", m.ConnId()).
		Str("user_id", m.Identity().Id).
		Msg("event rejected")
}

// decode fills v from the event payload. A bare JSON string is read as the
// session id.
func (r *room) decode(ev roomEvent, v interface{ id() string }) error {
	if len(ev.data) == 0 || string(ev.data) == "null" {
		return nil
	}
	if ev.data[0] == '"' {
		var id string
		if err := json.Unmarshal(ev.data, &id); err != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		if id != "" && id != r.id {
			return ErrWrongSession
		}
		return nil
	}
	if err := json.Unmarshal(ev.data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if id := v.id(); id != "" && id != r.id {
		return ErrWrongSession
	}
	return nil
}

// mutate runs one load, mutate, persist cycle. Nothing is written when op fails.
func (r *room) mutate(op func(*codenames.Session) error) (*codenames.Session, error) {
	ctx, cancel := storeContext()
	defer cancel()

	session, err := r.store.GetSession(ctx, r.id)
	if err != nil {
		return nil, err
	}
	if err := op(session); err != nil {
		return nil, err
	}
	if err := r.store.SetSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

type assignment struct {
	identity codenames.Identity
	team     codenames.TeamName
	role     codenames.Role
}

func validateStartPlayers(players []startGamePlayer) ([]assignment, error) {
	seen := make(map[string]bool, len(players))
	spyMasters := make(map[codenames.TeamName]bool, 2)
	out := make([]assignment, 0, len(players))

	for _, p := range players {
		if p.Id == "" {
			return nil, fmt.Errorf("%w: player without id", ErrBadPayload)
		}
		team, err := codenames.ParseTeamName(p.Team)
		if err != nil {
			return nil, err
		}
		if seen[p.Id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, p.Id)
		}
		seen[p.Id] = true

		role := codenames.RoleGuesser
		if p.SpyMaster {
			if spyMasters[team] {
				return nil, fmt.Errorf("%w: %s", ErrTooManySpyMaster, team)
			}
			spyMasters[team] = true
			role = codenames.RoleSpyMaster
		}
		out = append(out, assignment{
			identity: codenames.Identity{Id: p.Id, Name: p.Name},
			team:     team,
			role:     role,
		})
	}
	return out, nil
}

func (r *room) handleStartGame(ev roomEvent) error {
	var payload startGamePayload
	if err := r.decode(ev, &payload); err != nil {
		return err
	}
	assignments, err := validateStartPlayers(payload.Players)
	if err != nil {
		return err
	}

	session, err := r.mutate(func(s *codenames.Session) error {
		if s.Status != codenames.StatusSetup {
			return fmt.Errorf("%w: cannot start a game that is %s", codenames.ErrInvalidTransition, s.Status)
		}
		for _, a := range assignments {
			if err := s.AssignTeam(a.identity, a.team); err != nil {
				return err
			}
			if err := s.AssignRole(a.identity.Id, a.role); err != nil {
				return err
			}
		}
		s.BuildTeamList()
		return s.Start()
	})
	if err != nil {
		return err
	}

	r.timer.Start()
	r.broadcast(EventUpdateRoles, session)
	return nil
}

func (r *room) handleMove(ev roomEvent) error {
	var payload movePayload
	if err := r.decode(ev, &payload); err != nil {
		return err
	}
	team, err := codenames.ParseTeamName(payload.team())
	if err != nil {
		return err
	}
	if payload.CardIndex == nil {
		return fmt.Errorf("%w: missing cardIndex", ErrBadPayload)
	}

	var result codenames.PickResult
	session, err := r.mutate(func(s *codenames.Session) error {
		var err error
		result, err = s.PickCard(team, *payload.CardIndex)
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case session.Status == codenames.StatusOver:
		r.timer.Stop()
	case result.TurnChanged:
		r.timer.Start()
	}
	r.broadcast(EventUpdateGame, session)
	return nil
}

func (r *room) handleChangeTurn(ev roomEvent) error {
	var payload sessionRef
	if err := r.decode(ev, &payload); err != nil {
		return err
	}

	session, err := r.mutate(func(s *codenames.Session) error {
		s.ChangeTurn()
		return nil
	})
	if err != nil {
		return err
	}

	if session.Status == codenames.StatusRunning {
		r.timer.Start()
	} else {
		r.timer.Stop()
	}
	r.broadcast(EventUpdateGame, session)
	return nil
}

func (r *room) handleEndGame(ev roomEvent) error {
	var payload endGamePayload
	if err := r.decode(ev, &payload); err != nil {
		return err
	}

	session, err := r.mutate(func(s *codenames.Session) error {
		return s.EndGame(codenames.TeamName(strings.ToLower(payload.Winner)), payload.reason())
	})
	if err != nil {
		return err
	}

	r.timer.Stop()
	r.broadcast(EventUpdateGame, session)
	return nil
}

func (r *room) handlePlayAgain(ev roomEvent) error {
	var payload sessionRef
	if err := r.decode(ev, &payload); err != nil {
		return err
	}

	session, err := r.mutate(func(s *codenames.Session) error {
		return s.PlayAgain(r.dealer)
	})
	if err != nil {
		return err
	}

	r.timer.Stop()
	r.broadcast(EventPlayAgain, session)
	return nil
}

// handleFetchGame stays silent when the session is gone.
func (r *room) handleFetchGame(ev roomEvent) error {
	var payload sessionRef
	if err := r.decode(ev, &payload); err != nil {
		return err
	}

	ctx, cancel := storeContext()
	defer cancel()
	session, err := r.store.GetSession(ctx, r.id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	r.broadcast(EventUpdateGame, session)
	return nil
}

func (r *room) handleInitGame(ev roomEvent) error {
	var payload sessionRef
	if err := r.decode(ev, &payload); err != nil {
		return err
	}

	ctx, cancel := storeContext()
	defer cancel()
	session, err := r.store.GetSession(ctx, r.id)
	if err != nil {
		return err
	}

	ev.from.Send(encodeFrame(EventInitGame, initGameReply{
		Name:     ev.from.Identity().Name,
		State:    session,
		Messages: r.chat,
	}, ev.ack))
	return nil
}

func (r *room) handleMessage(ev roomEvent) error {
	var payload messagePayload
	if err := r.decode(ev, &payload); err != nil {
		return err
	}

	text := payload.text()
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return ErrMessageTooLong
	}

	entry := r.appendChat(ChatEntry{Sender: ev.from.Identity().Name, Message: text})
	r.broadcast(EventNewMessage, entry)
	return nil
}

// handleTick advances the turn timer. When it runs out the turn passes to
// the other team and a fresh countdown starts.
func (r *room) handleTick() {
	remaining, expired := r.timer.Tick()
	r.broadcast(EventTick, remaining)
	if !expired {
		return
	}

	r.broadcast(EventTimeOut, nil)
	r.timer.Stop()

	session, err := r.mutate(func(s *codenames.Session) error {
		if s.Status != codenames.StatusRunning {
			return fmt.Errorf("%w: turn ran out while the game is %s", codenames.ErrInvalidTransition, s.Status)
		}
		s.ChangeTurn()
		return nil
	})
	if err != nil {
		e := r.logger.Debug()
		if classify(err).Name == StoreUnavailableError {
			e = r.logger.Error()
		}
		e.Err(err).Msg("turn timer stopped")
		return
	}

	r.broadcast(EventUpdateGame, session)
	r.timer.Start()
}

func (r *room) appendChat(entry ChatEntry) ChatEntry {
	r.chat = append(r.chat, entry)
	if len(r.chat) > chatLogLimit {
		r.chat = slices.Clone(r.chat[len(r.chat)-chatLogLimit:])
	}
	return entry
}

func (r *room) broadcast(event string, data any) {
	frame := encodeFrame(event, data, nil)
	for _, m := range r.members {
		m.Send(frame)
	}
}

func (r *room) broadcastExcept(skip member, event string, data any) {
	frame := encodeFrame(event, data, nil)
	for id, m := range r.members {
		if id != skip.ConnId() {
			m.Send(frame)
		}
	}
}
