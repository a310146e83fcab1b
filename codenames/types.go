package codenames

import (
	"fmt"
	"strings"
)

const BoardSize = 25

type TeamName string

const (
	Red  TeamName = "red"
	Blue TeamName = "blue"
)

func ParseTeamName(s string) (TeamName, error) {
	switch TeamName(s) {
	case Red, Blue:
		return TeamName(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTeam, s)
}

func (t TeamName) Other() TeamName {
	if t == Red {
		return Blue
	}
	return Red
}

// Title is the display form used in end-of-game texts ("Red", "Blue").
func (t TeamName) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// CardType is the hidden affiliation of a card.
type CardType int

const (
	CardRed CardType = iota
	CardBlue
	CardInnocent
	CardAssassin
)

func cardTypeOf(team TeamName) CardType {
	if team == Red {
		return CardRed
	}
	return CardBlue
}

func (c CardType) String() string {
	switch c {
	case CardRed:
		return "red"
	case CardBlue:
		return "blue"
	case CardInnocent:
		return "innocent"
	case CardAssassin:
		return "assassin"
	}
	return fmt.Sprintf("CardType(%d)", int(c))
}

func (c CardType) MarshalText() ([]byte, error) {
	switch c {
	case CardRed, CardBlue, CardInnocent, CardAssassin:
		return []byte(c.String()), nil
	}
	return nil, fmt.Errorf("unknown card type %d", int(c))
}

func (c *CardType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "red":
		*c = CardRed
	case "blue":
		*c = CardBlue
	case "innocent":
		*c = CardInnocent
	case "assassin":
		*c = CardAssassin
	default:
		return fmt.Errorf("unknown card type %q", text)
	}
	return nil
}

type Role string

const (
	RoleUnassigned Role = ""
	RoleSpyMaster  Role = "spy-master"
	RoleGuesser    Role = "guesser"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSpyMaster, RoleGuesser:
		return Role(s), nil
	}
	return RoleUnassigned, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

type Status string

const (
	StatusSetup   Status = "setup"
	StatusRunning Status = "running"
	StatusOver    Status = "over"
)

type EndReason string

const (
	EndAssassin EndReason = "assassin"
	EndLastCard EndReason = "lastCard"
	EndManual   EndReason = "manual"
)

// NoWinner is the winner recorded when the host ends a game early.
const NoWinner = "No"

type Card struct {
	Word     string   `json:"word"`
	Type     CardType `json:"type"`
	Revealed bool     `json:"revealed"`
}

type Player struct {
	Id   string   `json:"id"`
	Name string   `json:"name"`
	Team TeamName `json:"team"`
	Role Role     `json:"role"`
}

type Team struct {
	Name    TeamName `json:"name"`
	Players []Player `json:"players"`
	Points  int      `json:"points"`
}

func newTeam(name TeamName) Team {
	return Team{Name: name, Players: []Player{}}
}

// Identity is a verified user as handed over by the auth layer.
type Identity struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type TeamRoster struct {
	Guessers  []string `json:"guesser"`
	SpyMaster string   `json:"spyMaster,omitempty"`
}

type TeamListView struct {
	Red  TeamRoster `json:"red"`
	Blue TeamRoster `json:"blue"`
}

type EndState struct {
	Winner string `json:"winner"`
	Reason string `json:"gameOverText"`
}

type Session struct {
	Id           string        `json:"id"`
	Board        []Card        `json:"board"`
	RedTeam      Team          `json:"redTeam"`
	BlueTeam     Team          `json:"blueTeam"`
	StartingTeam TeamName      `json:"startingTeam"`
	Turn         TeamName      `json:"turn"`
	TeamList     *TeamListView `json:"teamList,omitempty"`
	Players      []Identity    `json:"players"`
	Host         *Identity     `json:"host"`
	Status       Status        `json:"gameStatus"`
	EndState     *EndState     `json:"endGame,omitempty"`
}
