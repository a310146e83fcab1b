package codenames

import "fmt"

// Dealer deals boards and starting teams. *BoardGenerator implements it.
type Dealer interface {
	Generate(startingTeam TeamName) []Card
	RandomTeam() TeamName
}

// PickResult describes the effect of a single accepted card pick.
type PickResult struct {
	Card        Card
	TurnChanged bool
	GameOver    bool
}

// New creates a session in setup with a fresh board and a random starting team.
func New(id string, dealer Dealer) *Session {
	starting := dealer.RandomTeam()
	return &Session{
		Id:           id,
		Board:        dealer.Generate(starting),
		RedTeam:      newTeam(Red),
		BlueTeam:     newTeam(Blue),
		StartingTeam: starting,
		Turn:         starting,
		Players:      []Identity{},
		Status:       StatusSetup,
	}
}

func (s *Session) Team(name TeamName) (*Team, error) {
	switch name {
	case Red:
		return &s.RedTeam, nil
	case Blue:
		return &s.BlueTeam, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTeam, name)
}

// WinningScore is 9 for the team that started the round and 8 for the other.
func (s *Session) WinningScore(team TeamName) int {
	if team == s.StartingTeam {
		return startingTeamCards
	}
	return otherTeamCards
}

// AssignTeam appends the player to the named roster. It does not look for the
// same id in the other roster.
func (s *Session) AssignTeam(user Identity, team TeamName) error {
	t, err := s.Team(team)
	if err != nil {
		return err
	}
	t.Players = append(t.Players, Player{Id: user.Id, Name: user.Name, Team: team})
	return nil
}

// AssignRole sets the role of the first roster entry with playerId, red first.
func (s *Session) AssignRole(playerId string, role Role) error {
	if role != RoleSpyMaster && role != RoleGuesser {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	for _, t := range []*Team{&s.RedTeam, &s.BlueTeam} {
		for i := range t.Players {
			if t.Players[i].Id == playerId {
				t.Players[i].Role = role
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerId)
}

// BuildTeamList derives the display roster. Any player who is not a guesser is
// shown as spy-master; if there are several, the last one wins.
func (s *Session) BuildTeamList() {
	s.TeamList = &TeamListView{
		Red:  rosterOf(s.RedTeam),
		Blue: rosterOf(s.BlueTeam),
	}
}

func rosterOf(t Team) TeamRoster {
	roster := TeamRoster{Guessers: []string{}}
	for _, p := range t.Players {
		if p.Role == RoleGuesser {
			roster.Guessers = append(roster.Guessers, p.Name)
			continue
		}
		roster.SpyMaster = p.Name
	}
	return roster
}

// Join records a connected user. It reports false when the id was already there.
func (s *Session) Join(user Identity) bool {
	for _, p := range s.Players {
		if p.Id == user.Id {
			return false
		}
	}
	s.Players = append(s.Players, user)
	return true
}

func (s *Session) SetHost(user Identity) {
	s.Host = &user
}

func (s *Session) Start() error {
	if s.Status != StatusSetup {
		return fmt.Errorf("%w: cannot start a game that is %s", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusRunning
	return nil
}

// PickCard reveals the card at index on behalf of team and applies its effect.
// A rejected pick leaves the session untouched.
func (s *Session) PickCard(team TeamName, index int) (PickResult, error) {
	if s.Status != StatusRunning {
		return PickResult{}, fmt.Errorf("%w: cannot pick a card while the game is %s", ErrInvalidTransition, s.Status)
	}
	if _, err := s.Team(team); err != nil {
		return PickResult{}, err
	}
	if index < 0 || index >= len(s.Board) {
		return PickResult{}, fmt.Errorf("%w: %d", ErrCardOutOfRange, index)
	}
	card := &s.Board[index]
	if card.Revealed {
		return PickResult{}, fmt.Errorf("%w: %d", ErrCardRevealed, index)
	}

	card.Revealed = true
	turn := s.Turn

	switch card.Type {
	case CardAssassin:
		s.finish(team.Other(), EndAssassin)
	case CardInnocent:
		s.Turn = team.Other()
	case CardRed, CardBlue:
		owner := Red
		if card.Type == CardBlue {
			owner = Blue
		}
		t, _ := s.Team(owner)
		t.Points++
		if owner != team {
			s.Turn = team.Other()
		}
	}

	if s.Status == StatusRunning {
		s.decide()
	}

	return PickResult{
		Card:        *card,
		TurnChanged: s.Turn != turn,
		GameOver:    s.Status == StatusOver,
	}, nil
}

func (s *Session) decide() {
	for _, t := range []Team{s.RedTeam, s.BlueTeam} {
		if t.Points >= s.WinningScore(t.Name) {
			s.finish(t.Name, EndLastCard)
			return
		}
	}
}

func (s *Session) ChangeTurn() {
	s.Turn = s.Turn.Other()
}

// EndGame ends a running game. For EndManual the winner argument is ignored
// and the game ends without a winner.
func (s *Session) EndGame(winner TeamName, reason EndReason) error {
	if s.Status != StatusRunning {
		return fmt.Errorf("%w: cannot end a game that is %s", ErrInvalidTransition, s.Status)
	}
	switch reason {
	case EndManual:
	case EndAssassin, EndLastCard:
		if _, err := s.Team(winner); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEndReason, reason)
	}
	s.finish(winner, reason)
	return nil
}

func (s *Session) finish(winner TeamName, reason EndReason) {
	end := &EndState{}
	switch reason {
	case EndAssassin:
		end.Winner = winner.Title()
		end.Reason = fmt.Sprintf("%s team picked the assassin", winner.Other().Title())
	case EndLastCard:
		end.Winner = winner.Title()
		end.Reason = fmt.Sprintf("%s found all of their cards", winner.Title())
	case EndManual:
		end.Winner = NoWinner
		end.Reason = "Host has ended game early"
	}
	s.EndState = end
	s.Status = StatusOver
}

// PlayAgain resets rosters, scores and board for a new round. Id, connected
// players and host are kept.
func (s *Session) PlayAgain(dealer Dealer) error {
	if s.Status != StatusOver {
		return fmt.Errorf("%w: cannot replay a game that is %s", ErrInvalidTransition, s.Status)
	}
	s.RedTeam = newTeam(Red)
	s.BlueTeam = newTeam(Blue)
	s.StartingTeam = dealer.RandomTeam()
	s.Board = dealer.Generate(s.StartingTeam)
	s.Turn = s.StartingTeam
	s.TeamList = nil
	s.EndState = nil
	s.Status = StatusSetup
	return nil
}
