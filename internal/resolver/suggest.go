package resolver

import (
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// historySize caps how many recent queries are kept per guild.
const historySize = 50

// Suggester remembers recently resolved queries per guild and ranks them
// against a partial input for slash-command autocomplete. Safe for
// concurrent use.
type Suggester struct {
	mu      sync.Mutex
	byGuild map[string][]string // most recent first
}

// NewSuggester returns an empty suggester.
func NewSuggester() *Suggester {
	return &Suggester{byGuild: make(map[string][]string)}
}

// Record stores a successfully resolved query for a guild, deduplicating and
// keeping the most recent first.
func (s *Suggester) Record(guildID, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.byGuild[guildID]
	out := make([]string, 0, len(history)+1)
	out = append(out, query)
	for _, q := range history {
		if !strings.EqualFold(q, query) {
			out = append(out, q)
		}
	}
	if len(out) > historySize {
		out = out[:historySize]
	}
	s.byGuild[guildID] = out
}

// Suggest returns up to max queries for a guild ranked against the partial
// input. An empty partial returns the most recent queries.
func (s *Suggester) Suggest(guildID, partial string, max int) []string {
	s.mu.Lock()
	history := make([]string, len(s.byGuild[guildID]))
	copy(history, s.byGuild[guildID])
	s.mu.Unlock()

	if max <= 0 || len(history) == 0 {
		return nil
	}
	partial = strings.ToLower(strings.TrimSpace(partial))
	if partial == "" {
		if len(history) > max {
			history = history[:max]
		}
		return history
	}

	type scored struct {
		query string
		score float64
	}
	ranked := make([]scored, 0, len(history))
	for _, q := range history {
		ranked = append(ranked, scored{
			query: q,
			score: matchr.JaroWinkler(partial, strings.ToLower(q), false),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.query
	}
	return out
}
