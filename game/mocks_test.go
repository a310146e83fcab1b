package game

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// --- WebsocketConnection ---

type MockWebsocketConnection struct {
	mock.Mock
}

func (m *MockWebsocketConnection) Close() {
	m.Called()
}

func (m *MockWebsocketConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockWebsocketConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWebsocketConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- UserGetter ---

type MockUserGetter struct {
	mock.Mock
}

func (m *MockUserGetter) GetUserById(ctx context.Context, id string) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

// --- GameRecords ---

type MockGameRecords struct {
	mock.Mock
}

func (m *MockGameRecords) CreateGame(ctx context.Context, gameId, hostId string) error {
	args := m.Called(ctx, gameId, hostId)
	return args.Error(0)
}

func (m *MockGameRecords) GameExists(ctx context.Context, gameId string) (bool, error) {
	args := m.Called(ctx, gameId)
	return args.Bool(0), args.Error(1)
}

// --- SessionStore ---

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*codenames.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*codenames.Session)
	return s, args.Error(1)
}

func (m *MockSessionStore) SetSession(ctx context.Context, session *codenames.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionStore) DeleteSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- roomJoiner ---

type MockRoomJoiner struct {
	mock.Mock
}

func (m *MockRoomJoiner) Join(ctx context.Context, sessionId string, mem member) (*room, error) {
	args := m.Called(ctx, sessionId, mem)
	r, _ := args.Get(0).(*room)
	return r, args.Error(1)
}

// --- PeriodicTickerCreator ---

type fakeTicker struct {
	c       chan time.Time
	stopped bool
}

// fakeTickerCreator hands out tickers that only fire when the test says so.
type fakeTickerCreator struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *fakeTickerCreator) Create(duration time.Duration) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t.c, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		t.stopped = true
	}
}

func (f *fakeTickerCreator) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *fakeTickerCreator) last() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

func (f *fakeTickerCreator) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// --- member ---

type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ack   *int            `json:"ack"`
}

type fakeMember struct {
	id       string
	identity codenames.Identity

	mu     sync.Mutex
	frames []receivedFrame
	closed bool
}

func newFakeMember(id, name string) *fakeMember {
	return &fakeMember{id: "conn-" + id, identity: codenames.Identity{Id: id, Name: name}}
}

func (f *fakeMember) ConnId() string {
	return f.id
}

func (f *fakeMember) Identity() codenames.Identity {
	return f.identity
}

func (f *fakeMember) Send(data []byte) {
	var frame receivedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeMember) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeMember) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// take returns and forgets everything received so far.
func (f *fakeMember) take() []receivedFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.frames
	f.frames = nil
	return out
}

func events(frames []receivedFrame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

// --- Dealer ---

// stubDealer deals an unshuffled board: 0-8 belong to the starting team,
// 9-16 to the other team, 17-23 are innocent and 24 is the assassin.
type stubDealer struct {
	starting codenames.TeamName
}

func (d stubDealer) RandomTeam() codenames.TeamName {
	return d.starting
}

func (d stubDealer) Generate(starting codenames.TeamName) []codenames.Card {
	own, other := codenames.CardRed, codenames.CardBlue
	if starting == codenames.Blue {
		own, other = other, own
	}
	board := make([]codenames.Card, codenames.BoardSize)
	for i := range board {
		board[i].Word = fmt.Sprintf("card%02d", i)
		switch {
		case i < 9:
			board[i].Type = own
		case i < 17:
			board[i].Type = other
		case i < 24:
			board[i].Type = codenames.CardInnocent
		default:
			board[i].Type = codenames.CardAssassin
		}
	}
	return board
}
