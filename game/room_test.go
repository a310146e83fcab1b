package game

import (
	"codewords/codenames"
	"codewords/domain"
	"codewords/storage"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSessionId = "session-1"

type roomFixture struct {
	room    *room
	store   SessionStore
	tickers *fakeTickerCreator
	refs    int
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	store := storage.NewMemorySessionStore()
	session := codenames.New(testSessionId, stubDealer{starting: codenames.Red})
	require.NoError(t, store.SetSession(context.Background(), session))
	return newRoomFixtureWithStore(store)
}

func newRoomFixtureWithStore(store SessionStore) *roomFixture {
	f := &roomFixture{store: store, tickers: &fakeTickerCreator{}}
	f.room = newRoom(testSessionId, roomConfig{
		store:         store,
		dealer:        stubDealer{starting: codenames.Blue},
		tickerCreator: f.tickers,
		tickInterval:  time.Second,
		turnDuration:  60,
		release: func(*room) bool {
			f.refs--
			return f.refs == 0
		},
	})
	return f
}

func (f *roomFixture) join(t *testing.T, members ...*fakeMember) {
	t.Helper()
	for _, m := range members {
		f.refs++
		req := joinRequest{member: m, errChan: make(chan error, 1)}
		require.False(t, f.room.handleJoin(req))
		require.NoError(t, <-req.errChan)
	}
}

func (f *roomFixture) send(from *fakeMember, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	f.room.handleEvent(roomEvent{from: from, event: event, data: raw})
}

func (f *roomFixture) session(t *testing.T) *codenames.Session {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), testSessionId)
	require.NoError(t, err)
	return s
}

func decodeData[T any](t *testing.T, frame receivedFrame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(frame.Data, &v))
	return v
}

func requireError(t *testing.T, frames []receivedFrame, name string) WireError {
	t.Helper()
	require.Len(t, frames, 1)
	require.Equal(t, EventError, frames[0].Event)
	errs := decodeData[[]WireError](t, frames[0])
	require.Len(t, errs, 1)
	assert.Equal(t, name, errs[0].Name)
	return errs[0]
}

func startPayload(players ...startGamePlayer) map[string]any {
	return map[string]any{"sessionId": testSessionId, "players": players}
}

var (
	naruto = startGamePlayer{Id: "u1", Name: "naruto", Team: "red", SpyMaster: true}
	sasuke = startGamePlayer{Id: "u2", Name: "sasuke", Team: "blue", SpyMaster: true}
	sakura = startGamePlayer{Id: "u3", Name: "sakura", Team: "red"}
)

// startedRoom returns a running game with naruto and sasuke connected.
func startedRoom(t *testing.T) (*roomFixture, *fakeMember, *fakeMember) {
	t.Helper()
	f := newRoomFixture(t)
	a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")
	f.join(t, a, b)
	f.send(a, EventStartGame, startPayload(naruto, sasuke, sakura))
	a.take()
	b.take()
	require.Equal(t, codenames.StatusRunning, f.session(t).Status)
	return f, a, b
}

func TestRoom_Join(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")

	f.join(t, a)
	frames := a.take()
	assert.Equal(t, []string{EventUpdatePlayers, EventMessages}, events(frames))
	assert.Equal(t, []ChatEntry{{Sender: "alert", Message: "naruto joined the game"}}, decodeData[[]ChatEntry](t, frames[1]))

	f.join(t, b)
	aFrames, bFrames := a.take(), b.take()
	assert.Equal(t, []string{EventUpdatePlayers, EventNewMessage}, events(aFrames))
	assert.Equal(t, ChatEntry{Sender: "alert", Message: "sasuke joined the game"}, decodeData[ChatEntry](t, aFrames[1]))
	assert.Equal(t, []string{EventUpdatePlayers, EventMessages}, events(bFrames))
	assert.Len(t, decodeData[[]ChatEntry](t, bFrames[1]), 2)

	state := decodeData[codenames.Session](t, bFrames[0])
	assert.Equal(t, []codenames.Identity{{Id: "u1", Name: "naruto"}, {Id: "u2", Name: "sasuke"}}, state.Players)
	assert.Equal(t, state.Players, f.session(t).Players)
}

func TestRoom_JoinMissingSession(t *testing.T) {
	t.Parallel()
	f := newRoomFixtureWithStore(storage.NewMemorySessionStore())
	m := newFakeMember("u1", "naruto")

	f.refs++
	req := joinRequest{member: m, errChan: make(chan error, 1)}
	closed := f.room.handleJoin(req)

	assert.True(t, closed, "room without members shuts down")
	assert.ErrorIs(t, <-req.errChan, domain.ErrSessionNotFound)
	assert.Empty(t, m.take())
	assert.Empty(t, f.room.members)
}

func TestRoom_StartGame(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")
	f.join(t, a, b)
	a.take()
	b.take()

	f.send(a, EventStartGame, startPayload(naruto, sasuke, sakura))

	for _, m := range []*fakeMember{a, b} {
		frames := m.take()
		require.Equal(t, []string{EventUpdateRoles}, events(frames))
		state := decodeData[codenames.Session](t, frames[0])
		assert.Equal(t, codenames.StatusRunning, state.Status)
		require.NotNil(t, state.TeamList)
		assert.Equal(t, "naruto", state.TeamList.Red.SpyMaster)
		assert.Equal(t, []string{"sakura"}, state.TeamList.Red.Guessers)
		assert.Equal(t, "sasuke", state.TeamList.Blue.SpyMaster)
		assert.Empty(t, state.TeamList.Blue.Guessers)
	}

	assert.Equal(t, codenames.StatusRunning, f.session(t).Status)
	assert.True(t, f.room.timer.Running())
	assert.Equal(t, 1, f.tickers.active())
}

func TestRoom_StartGameRejected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc     string
		players  []startGamePlayer
		expected string
	}{
		{
			desc:     "unknown team",
			players:  []startGamePlayer{naruto, {Id: "u9", Name: "kiba", Team: "green"}},
			expected: ValidationError,
		},
		{
			desc:     "two spy-masters on one team",
			players:  []startGamePlayer{naruto, {Id: "u9", Name: "kiba", Team: "red", SpyMaster: true}},
			expected: ValidationError,
		},
		{
			desc:     "duplicate id",
			players:  []startGamePlayer{naruto, {Id: "u1", Name: "naruto", Team: "blue"}},
			expected: ValidationError,
		},
		{
			desc:     "missing id",
			players:  []startGamePlayer{{Name: "ghost", Team: "blue"}},
			expected: ValidationError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			f := newRoomFixture(t)
			a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")
			f.join(t, a, b)
			a.take()
			b.take()
			before := f.session(t)

			f.send(a, EventStartGame, startPayload(tc.players...))

			requireError(t, a.take(), tc.expected)
			assert.Empty(t, b.take())
			assert.Equal(t, before, f.session(t))
			assert.False(t, f.room.timer.Running())
		})
	}
}

func TestRoom_StartGameTwice(t *testing.T) {
	t.Parallel()
	f, a, b := startedRoom(t)

	f.send(b, EventStartGame, startPayload(naruto))

	requireError(t, b.take(), InvalidTransitionError)
	assert.Empty(t, a.take())
}

func TestRoom_Move(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc           string
		team           string
		card           int
		expectedTurn   codenames.TeamName
		expectedStatus codenames.Status
		newTimer       bool
		timerRunning   bool
	}{
		{desc: "own card keeps the turn", team: "red", card: 0, expectedTurn: codenames.Red, expectedStatus: codenames.StatusRunning, timerRunning: true},
		{desc: "innocent passes the turn", team: "red", card: 17, expectedTurn: codenames.Blue, expectedStatus: codenames.StatusRunning, newTimer: true, timerRunning: true},
		{desc: "opponent card passes the turn", team: "red", card: 9, expectedTurn: codenames.Blue, expectedStatus: codenames.StatusRunning, newTimer: true, timerRunning: true},
		{desc: "assassin ends the game", team: "red", card: 24, expectedTurn: codenames.Red, expectedStatus: codenames.StatusOver},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			f, a, b := startedRoom(t)
			timersBefore := f.tickers.created()

			f.send(a, EventMove, map[string]any{"sessionId": testSessionId, "actingTeam": tc.team, "cardIndex": tc.card})

			for _, m := range []*fakeMember{a, b} {
				frames := m.take()
				require.Equal(t, []string{EventUpdateGame}, events(frames))
				state := decodeData[codenames.Session](t, frames[0])
				assert.True(t, state.Board[tc.card].Revealed)
				assert.Equal(t, tc.expectedTurn, state.Turn)
				assert.Equal(t, tc.expectedStatus, state.Status)
			}

			stored := f.session(t)
			assert.True(t, stored.Board[tc.card].Revealed)
			if tc.newTimer {
				assert.Equal(t, timersBefore+1, f.tickers.created())
			} else {
				assert.Equal(t, timersBefore, f.tickers.created())
			}
			assert.Equal(t, tc.timerRunning, f.room.timer.Running())
			if tc.timerRunning {
				assert.Equal(t, 1, f.tickers.active())
			} else {
				assert.Zero(t, f.tickers.active())
			}
		})
	}
}

func TestRoom_MoveAssassinWinner(t *testing.T) {
	t.Parallel()
	f, a, _ := startedRoom(t)

	f.send(a, EventMove, map[string]any{"gameId": testSessionId, "currentTurn": "red", "cardIndex": 24})

	stored := f.session(t)
	require.NotNil(t, stored.EndState)
	assert.Equal(t, "Blue", stored.EndState.Winner)
	assert.Contains(t, stored.EndState.Reason, "picked the assassin")
}

func TestRoom_MoveRejected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc     string
		payload  map[string]any
		expected string
	}{
		{desc: "revealed card", payload: map[string]any{"actingTeam": "red", "cardIndex": 3}, expected: InvalidTransitionError},
		{desc: "out of range", payload: map[string]any{"actingTeam": "red", "cardIndex": 25}, expected: InvalidTransitionError},
		{desc: "unknown team", payload: map[string]any{"actingTeam": "green", "cardIndex": 5}, expected: ValidationError},
		{desc: "missing index", payload: map[string]any{"actingTeam": "red"}, expected: ValidationError},
		{desc: "other session", payload: map[string]any{"sessionId": "nope", "actingTeam": "red", "cardIndex": 5}, expected: ValidationError},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			f, a, b := startedRoom(t)
			f.send(a, EventMove, map[string]any{"actingTeam": "red", "cardIndex": 3})
			a.take()
			b.take()
			before := f.session(t)

			f.send(a, EventMove, tc.payload)

			requireError(t, a.take(), tc.expected)
			assert.Empty(t, b.take(), "errors go to the requester only")
			assert.Equal(t, before, f.session(t))
		})
	}
}

func TestRoom_ChangeTurn(t *testing.T) {
	t.Parallel()
	f, a, b := startedRoom(t)
	first := f.tickers.last()

	f.send(b, EventChangeTurn, map[string]any{"sessionId": testSessionId})

	for _, m := range []*fakeMember{a, b} {
		frames := m.take()
		require.Equal(t, []string{EventUpdateGame}, events(frames))
		assert.Equal(t, codenames.Blue, decodeData[codenames.Session](t, frames[0]).Turn)
	}
	assert.Equal(t, codenames.Blue, f.session(t).Turn)
	assert.True(t, first.stopped)
	assert.Equal(t, 1, f.tickers.active())
}

func TestRoom_EndGameAndPlayAgain(t *testing.T) {
	t.Parallel()
	f, a, b := startedRoom(t)

	f.send(a, EventEndGame, map[string]any{"sessionId": testSessionId, "winner": "Red", "reason": "manual"})

	for _, m := range []*fakeMember{a, b} {
		frames := m.take()
		require.Equal(t, []string{EventUpdateGame}, events(frames))
		state := decodeData[codenames.Session](t, frames[0])
		assert.Equal(t, codenames.StatusOver, state.Status)
		require.NotNil(t, state.EndState)
		assert.Equal(t, codenames.NoWinner, state.EndState.Winner)
	}
	assert.False(t, f.room.timer.Running())
	assert.Zero(t, f.tickers.active())

	f.send(a, EventEndGame, map[string]any{"winner": "red", "method": "manual"})
	requireError(t, a.take(), InvalidTransitionError)

	f.send(b, EventPlayAgain, testSessionId)

	for _, m := range []*fakeMember{a, b} {
		frames := m.take()
		require.Equal(t, []string{EventPlayAgain}, events(frames))
		state := decodeData[codenames.Session](t, frames[0])
		assert.Equal(t, codenames.StatusSetup, state.Status)
		assert.Equal(t, testSessionId, state.Id)
		assert.Equal(t, codenames.Blue, state.StartingTeam)
		assert.Zero(t, state.RedTeam.Points)
		assert.Empty(t, state.RedTeam.Players)
		assert.Nil(t, state.EndState)
		assert.Len(t, state.Players, 2)
	}

	f.send(b, EventPlayAgain, map[string]any{"sessionId": testSessionId})
	requireError(t, b.take(), InvalidTransitionError)
}

func TestRoom_EndGameUnknownReason(t *testing.T) {
	t.Parallel()
	f, a, _ := startedRoom(t)

	f.send(a, EventEndGame, map[string]any{"winner": "red", "reason": "boredom"})

	requireError(t, a.take(), ValidationError)
	assert.Equal(t, codenames.StatusRunning, f.session(t).Status)
}

func TestRoom_FetchGame(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")
	f.join(t, a, b)
	a.take()
	b.take()

	f.send(a, EventFetchGame, map[string]any{"gameId": testSessionId})
	assert.Equal(t, []string{EventUpdateGame}, events(a.take()))
	assert.Equal(t, []string{EventUpdateGame}, events(b.take()))

	require.NoError(t, f.store.DeleteSession(context.Background(), testSessionId))
	f.send(a, EventFetchGame, map[string]any{"gameId": testSessionId})
	assert.Empty(t, a.take())
	assert.Empty(t, b.take())
}

func TestRoom_InitGame(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")
	f.join(t, a, b)
	a.take()
	b.take()

	ack := 7
	f.room.handleEvent(roomEvent{from: b, event: EventInitGame, data: json.RawMessage(`{"sessionId":"session-1"}`), ack: &ack})

	assert.Empty(t, a.take())
	frames := b.take()
	require.Equal(t, []string{EventInitGame}, events(frames))
	require.NotNil(t, frames[0].Ack)
	assert.Equal(t, 7, *frames[0].Ack)

	reply := decodeData[initGameReply](t, frames[0])
	assert.Equal(t, "sasuke", reply.Name)
	require.NotNil(t, reply.State)
	assert.Equal(t, testSessionId, reply.State.Id)
	assert.Equal(t, []ChatEntry{
		{Sender: "alert", Message: "naruto joined the game"},
		{Sender: "alert", Message: "sasuke joined the game"},
	}, reply.Messages)
}

func TestRoom_Message(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")
	f.join(t, a, b)
	a.take()
	b.take()

	f.send(a, EventMessage, map[string]any{"sessionId": testSessionId, "message": "  believe it  "})
	for _, m := range []*fakeMember{a, b} {
		frames := m.take()
		require.Equal(t, []string{EventNewMessage}, events(frames))
		assert.Equal(t, ChatEntry{Sender: "naruto", Message: "believe it"}, decodeData[ChatEntry](t, frames[0]))
	}

	f.send(b, EventMessage, map[string]any{"msgData": map[string]string{"sender": "itachi", "message": "foolish"}})
	frames := a.take()
	require.Len(t, frames, 1)
	assert.Equal(t, ChatEntry{Sender: "sasuke", Message: "foolish"}, decodeData[ChatEntry](t, frames[0]), "sender comes from the connection")
	b.take()

	f.send(a, EventMessage, map[string]any{"message": "   "})
	requireError(t, a.take(), ValidationError)
	assert.Empty(t, b.take())
}

func TestRoom_ChatLogIsCapped(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	a := newFakeMember("u1", "naruto")
	f.join(t, a)

	for i := range chatLogLimit + 50 {
		f.send(a, EventMessage, map[string]any{"message": fmt.Sprintf("msg %d", i)})
	}

	require.Len(t, f.room.chat, chatLogLimit)
	assert.Equal(t, "msg 50", f.room.chat[0].Message)
	assert.Equal(t, fmt.Sprintf("msg %d", chatLogLimit+49), f.room.chat[chatLogLimit-1].Message)
}

func TestRoom_TurnTimerExpires(t *testing.T) {
	t.Parallel()
	f, a, _ := startedRoom(t)
	require.Equal(t, 1, f.tickers.created())
	firstTimer := f.tickers.last()

	for range 60 {
		f.room.handleTick()
	}

	frames := a.take()
	var ticks []int
	timeOuts := 0
	updates := 0
	for _, fr := range frames {
		switch fr.Event {
		case EventTick:
			ticks = append(ticks, decodeData[int](t, fr))
		case EventTimeOut:
			timeOuts++
		case EventUpdateGame:
			updates++
			assert.Equal(t, codenames.Blue, decodeData[codenames.Session](t, fr).Turn)
		}
	}

	require.Len(t, ticks, 60)
	assert.Equal(t, 59, ticks[0])
	assert.Equal(t, 0, ticks[59])
	assert.Equal(t, 1, timeOuts)
	assert.Equal(t, 1, updates)
	assert.Equal(t, []string{EventTick, EventTimeOut, EventUpdateGame}, events(frames[59:]))

	assert.Equal(t, codenames.Blue, f.session(t).Turn, "turn flips once")
	assert.True(t, firstTimer.stopped)
	assert.Equal(t, 2, f.tickers.created())
	assert.Equal(t, 1, f.tickers.active())
	assert.Equal(t, 60, f.room.timer.remaining, "countdown starts over")

	f.room.handleTick()
	last := a.take()
	require.Len(t, last, 1)
	assert.Equal(t, 59, decodeData[int](t, last[0]))
}

func TestRoom_TurnTimerSessionGone(t *testing.T) {
	t.Parallel()
	f, a, _ := startedRoom(t)
	require.NoError(t, f.store.DeleteSession(context.Background(), testSessionId))

	for range 60 {
		f.room.handleTick()
	}

	frames := a.take()
	assert.Equal(t, []string{EventTick, EventTimeOut}, events(frames[59:]))
	assert.False(t, f.room.timer.Running())
	assert.Zero(t, f.tickers.active())

	_, err := f.store.GetSession(context.Background(), testSessionId)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "an expired timer never recreates a session")
}

func TestRoom_Leave(t *testing.T) {
	t.Parallel()
	f, a, b := startedRoom(t)

	assert.False(t, f.room.handleLeave(a))
	frames := b.take()
	require.Equal(t, []string{EventNewMessage}, events(frames))
	assert.Equal(t, ChatEntry{Sender: "alert", Message: "naruto left the game"}, decodeData[ChatEntry](t, frames[0]))
	assert.True(t, f.room.timer.Running())
	f.session(t)

	// unknown members are ignored
	assert.False(t, f.room.handleLeave(newFakeMember("u9", "kiba")))

	assert.True(t, f.room.handleLeave(b))
	assert.False(t, f.room.timer.Running())
	assert.Zero(t, f.tickers.active())

	_, err := f.store.GetSession(context.Background(), testSessionId)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "abandoned sessions are deleted")
}

func TestRoom_StoreUnavailable(t *testing.T) {
	t.Parallel()
	store := &MockSessionStore{}
	f := newRoomFixtureWithStore(store)
	session := codenames.New(testSessionId, stubDealer{starting: codenames.Red})

	store.On("GetSession", mock.Anything, testSessionId).Return(session, nil).Twice()
	store.On("SetSession", mock.Anything, mock.Anything).Return(nil).Twice()
	a, b := newFakeMember("u1", "naruto"), newFakeMember("u2", "sasuke")
	f.join(t, a, b)
	a.take()
	b.take()

	dbErr := fmt.Errorf("%w: connection refused", domain.UnexpectedDatabaseError)

	t.Run("load fails", func(t *testing.T) {
		store.On("GetSession", mock.Anything, testSessionId).Return(nil, dbErr).Once()

		f.send(a, EventStartGame, startPayload(naruto, sasuke))

		e := requireError(t, a.take(), StoreUnavailableError)
		assert.Equal(t, "session-unavailable", e.Message)
		assert.Empty(t, b.take())
		assert.False(t, f.room.timer.Running())
	})

	t.Run("persist fails", func(t *testing.T) {
		fresh := codenames.New(testSessionId, stubDealer{starting: codenames.Red})
		store.On("GetSession", mock.Anything, testSessionId).Return(fresh, nil).Once()
		store.On("SetSession", mock.Anything, mock.Anything).Return(dbErr).Once()

		f.send(b, EventStartGame, startPayload(naruto, sasuke))

		requireError(t, b.take(), StoreUnavailableError)
		assert.Empty(t, a.take(), "nothing is broadcast when the write fails")
		assert.False(t, f.room.timer.Running())
	})

	store.AssertExpectations(t)
}

func TestRoom_UnknownEvent(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	a := newFakeMember("u1", "naruto")
	f.join(t, a)
	a.take()

	f.send(a, "dance", nil)
	requireError(t, a.take(), ValidationError)

	f.room.handleEvent(roomEvent{from: a, event: EventMove, data: json.RawMessage(`{"cardIndex":`)})
	requireError(t, a.take(), ValidationError)
}

func TestRoom_Run(t *testing.T) {
	t.Parallel()
	f := newRoomFixture(t)
	go f.room.run()

	a := newFakeMember("u1", "naruto")
	f.refs++
	req := joinRequest{member: a, errChan: make(chan error, 1)}
	f.room.joins <- req
	require.NoError(t, <-req.errChan)

	ctx := context.Background()
	require.NoError(t, f.room.Send(ctx, roomEvent{from: a, event: EventStartGame, data: json.RawMessage(`{"players":[{"id":"u1","name":"naruto","team":"red"}]}`)}))

	require.Eventually(t, func() bool { return f.tickers.created() == 1 }, time.Second, 5*time.Millisecond)
	f.tickers.last().c <- time.Now()

	require.Eventually(t, func() bool {
		for _, fr := range a.take() {
			if fr.Event == EventTick {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	f.room.stop()
	<-f.room.done
	assert.True(t, a.isClosed())
	assert.Zero(t, f.tickers.active())
}
