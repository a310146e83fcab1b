package codenames

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

const (
	startingTeamCards = 9
	otherTeamCards    = 8
	innocentCards     = 7
	assassinCards     = 1
)

// BoardGenerator deals boards from a fixed corpus. It is safe for concurrent use.
type BoardGenerator struct {
	words []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBoardGenerator copies words, dropping case-insensitive duplicates. A nil
// rng seeds a fresh one.
func NewBoardGenerator(words []string, rng *rand.Rand) (*BoardGenerator, error) {
	seen := make(map[string]struct{}, len(words))
	corpus := make([]string, 0, len(words))
	for _, w := range words {
		key := normalizeWord(w)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		corpus = append(corpus, w)
	}

	if len(corpus) < BoardSize {
		return nil, fmt.Errorf("%w: %d distinct words, need %d", ErrCorpusTooSmall, len(corpus), BoardSize)
	}

	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &BoardGenerator{words: corpus, rng: rng}, nil
}

// RandomTeam picks red or blue with equal probability.
func (g *BoardGenerator) RandomTeam() TeamName {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rng.IntN(2) == 0 {
		return Blue
	}
	return Red
}

// Generate deals 25 distinct words: 9 for the starting team, 8 for the other
// team, 7 innocents and the assassin, in shuffled order.
func (g *BoardGenerator) Generate(startingTeam TeamName) []Card {
	g.mu.Lock()
	defer g.mu.Unlock()

	picks := g.rng.Perm(len(g.words))[:BoardSize]

	board := make([]Card, 0, BoardSize)
	for i, wordIndex := range picks {
		board = append(board, Card{Word: g.words[wordIndex], Type: cardTypeAt(i, startingTeam)})
	}

	g.rng.Shuffle(len(board), func(i, j int) {
		board[i], board[j] = board[j], board[i]
	})
	return board
}

func cardTypeAt(i int, startingTeam TeamName) CardType {
	switch {
	case i < startingTeamCards:
		return cardTypeOf(startingTeam)
	case i < startingTeamCards+otherTeamCards:
		return cardTypeOf(startingTeam.Other())
	case i < startingTeamCards+otherTeamCards+innocentCards:
		return CardInnocent
	default:
		return CardAssassin
	}
}
