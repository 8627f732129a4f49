package tournament

import "fmt"

// #region slots

// Slot names where a contestant comes from: a 1-based seed or the winner of
// an earlier match.
type Slot struct {
	Seed     int    `json:"seed,omitempty"`
	WinnerOf string `json:"winner_of,omitempty"`
}

// Seed refers to the n-th writer of the roster (1-based).
func Seed(n int) Slot { return Slot{Seed: n} }

// WinnerOf refers to the winner of the named match.
func WinnerOf(match string) Slot { return Slot{WinnerOf: match} }

func (s Slot) String() string {
	if s.WinnerOf != "" {
		return "winner(" + s.WinnerOf + ")"
	}
	return fmt.Sprintf("seed(%d)", s.Seed)
}

// #endregion slots

// #region bracket

// Match is one pairing in a bracket.
type Match struct {
	Name string
	A, B Slot
}

// Bracket is an ordered list of matches. The winner of the last match is the
// champion.
type Bracket []Match

// FourWriterBracket is the fixed single-elimination bracket for four writers.
var FourWriterBracket = Bracket{
	{Name: "semifinal_1", A: Seed(1), B: Seed(2)},
	{Name: "semifinal_2", A: Seed(3), B: Seed(4)},
	{Name: "final", A: WinnerOf("semifinal_1"), B: WinnerOf("semifinal_2")},
}

// Seeds returns the number of writers the bracket needs.
func (b Bracket) Seeds() int {
	n := 0
	for _, m := range b {
		for _, s := range []Slot{m.A, m.B} {
			if s.Seed > n {
				n = s.Seed
			}
		}
	}
	return n
}

// Validate checks that every seed 1..Seeds() appears exactly once, that
// winner references point at earlier matches, and that every match but the
// last feeds exactly one later match.
func (b Bracket) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("tournament: empty bracket")
	}

	seen := make(map[int]bool)
	played := make(map[string]bool)
	consumed := make(map[string]int)

	for _, m := range b {
		if m.Name == "" || played[m.Name] {
			return fmt.Errorf("tournament: match name %q empty or duplicated", m.Name)
		}
		for _, s := range []Slot{m.A, m.B} {
			switch {
			case s.WinnerOf != "":
				if !played[s.WinnerOf] {
					return fmt.Errorf("tournament: match %s references %s before it is played", m.Name, s)
				}
				consumed[s.WinnerOf]++
			case s.Seed > 0:
				if seen[s.Seed] {
					return fmt.Errorf("tournament: %s used twice", s)
				}
				seen[s.Seed] = true
			default:
				return fmt.Errorf("tournament: match %s has an empty slot", m.Name)
			}
		}
		played[m.Name] = true
	}

	for i := 1; i <= b.Seeds(); i++ {
		if !seen[i] {
			return fmt.Errorf("tournament: seed %d never plays", i)
		}
	}
	for i, m := range b {
		want := 1
		if i == len(b)-1 {
			want = 0
		}
		if consumed[m.Name] != want {
			return fmt.Errorf("tournament: winner of %s advances %d times, want %d", m.Name, consumed[m.Name], want)
		}
	}
	return nil
}

// #endregion bracket
