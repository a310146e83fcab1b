package game

import (
	"codewords/codenames"
	"encoding/json"
	"strings"
)

// Client to server events.
const (
	EventJoinGame   = "join-game"
	EventStartGame  = "start-game"
	EventInitGame   = "init-game"
	EventMessage    = "message"
	EventMove       = "move"
	EventChangeTurn = "change-turn"
	EventEndGame    = "end-game"
	EventPlayAgain  = "play-again"
	EventFetchGame  = "fetch-game"
)

// Server to client events.
const (
	EventUpdatePlayers = "update-players"
	EventUpdateRoles   = "update-roles"
	EventUpdateGame    = "update-game"
	EventNewMessage    = "new-message"
	EventMessages      = "messages"
	EventTick          = "tick"
	EventTimeOut       = "time-out"
	EventError         = "error"
)

var roomEvents = map[string]bool{
	EventStartGame:  true,
	EventInitGame:   true,
	EventMessage:    true,
	EventMove:       true,
	EventChangeTurn: true,
	EventEndGame:    true,
	EventPlayAgain:  true,
	EventFetchGame:  true,
}

const (
	alertSender      = "alert"
	maxMessageLength = 500
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ack   *int            `json:"ack,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ack   *int   `json:"ack,omitempty"`
}

func encodeFrame(event string, data any, ack *int) []byte {
	// every payload is built from plain structs, so this cannot fail
	b, _ := json.Marshal(outboundFrame{Event: event, Data: data, Ack: ack})
	return b
}

// sessionRef accepts both "sessionId" and the older "gameId" key.
type sessionRef struct {
	SessionId string `json:"sessionId"`
	GameId    string `json:"gameId"`
}

func (s sessionRef) id() string {
	if s.SessionId != "" {
		return s.SessionId
	}
	return s.GameId
}

type startGamePlayer struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Team      string `json:"team"`
	SpyMaster bool   `json:"spyMaster"`
}

type startGamePayload struct {
	sessionRef
	Players []startGamePlayer `json:"players"`
}

type movePayload struct {
	sessionRef
	ActingTeam  string `json:"actingTeam"`
	CurrentTurn string `json:"currentTurn"`
	CardIndex   *int   `json:"cardIndex"`
}

func (p movePayload) team() string {
	if p.ActingTeam != "" {
		return p.ActingTeam
	}
	return p.CurrentTurn
}

type endGamePayload struct {
	sessionRef
	Winner string `json:"winner"`
	Reason string `json:"reason"`
	Method string `json:"method"`
}

func (p endGamePayload) reason() codenames.EndReason {
	if p.Reason != "" {
		return codenames.EndReason(p.Reason)
	}
	return codenames.EndReason(p.Method)
}

type messagePayload struct {
	sessionRef
	Message string `json:"message"`
	MsgData *struct {
		Message string `json:"message"`
	} `json:"msgData"`
}

func (p messagePayload) text() string {
	if p.Message == "" && p.MsgData != nil {
		return strings.TrimSpace(p.MsgData.Message)
	}
	return strings.TrimSpace(p.Message)
}

// ChatEntry is one line of a room's log. Join and leave notices use the
// "alert" sender.
type ChatEntry struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type initGameReply struct {
	Name     string             `json:"name"`
	State    *codenames.Session `json:"state"`
	Messages []ChatEntry        `json:"messages"`
}
