// Package rank scores chunks lexically against a question and picks a
// per-document-diverse top K.
package rank

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"docqa/internal/models"
)

const (
	DefaultTopK = 3

	exactPoints   = 2
	exactCap      = 3
	rootPoints    = 1
	rootCap       = 2
	matchBonus    = 15
	diversityRate = 0.7

	expansionTurns = 2
	expansionWords = 5
)

// stripped in this order, so "matches" loses "es" rather than "s"
var suffixes = []string{"ing", "es", "ed", "s"}

type Scored struct {
	Chunk models.Chunk
	Score float64
}

// FindRelevantChunks returns up to topK chunks with a positive score, best
// first, taking at most ceil(topK*0.7) from any one document. An empty result
// means nothing in the corpus overlaps the question.
func FindRelevantChunks(question string, chunks []models.Chunk, topK int, history []models.Message) []models.Chunk {
	if topK <= 0 {
		topK = DefaultTopK
	}
	ranked := Rank(ExpandQuery(question, history), chunks)
	perDoc := int(math.Ceil(float64(topK) * diversityRate))
	taken := map[string]int{}
	out := make([]models.Chunk, 0, topK)
	for _, r := range ranked {
		if len(out) == topK {
			break
		}
		if taken[r.Chunk.DocumentID] >= perDoc {
			continue
		}
		taken[r.Chunk.DocumentID]++
		out = append(out, r.Chunk)
	}
	return out
}

// Rank scores every chunk and returns the positive ones, highest first.
// Equal scores keep corpus order.
func Rank(query string, chunks []models.Chunk) []Scored {
	terms := uniqueTokens(query, 2)
	out := make([]Scored, 0, len(chunks))
	for _, c := range chunks {
		if s := Score(terms, c.Text); s > 0 {
			out = append(out, Scored{Chunk: c, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Score applies exact-match points, root partial credit and the flat bonus
// per distinct matched term.
func Score(terms []string, text string) float64 {
	counts := map[string]int{}
	words := tokenize(text)
	for _, w := range words {
		counts[w]++
	}
	score := 0.0
	matches := 0.0
	for _, term := range terms {
		if n := counts[term]; n > 0 {
			score += float64(exactPoints * min(n, exactCap))
			matches++
			continue
		}
		if utf8.RuneCountInString(term) <= 4 {
			continue
		}
		root := Root(term)
		if utf8.RuneCountInString(root) <= 3 {
			continue
		}
		n := 0
		for _, w := range words {
			if strings.HasPrefix(w, root) {
				n++
			}
		}
		if n > 0 {
			score += float64(rootPoints * min(n, rootCap))
			matches += 0.5
		}
	}
	return score + matches*matchBonus
}

// Root strips one common English suffix. It is a rough stemmer ("bus" -> "bu").
func Root(word string) string {
	for _, s := range suffixes {
		if strings.HasSuffix(word, s) {
			return strings.TrimSuffix(word, s)
		}
	}
	return word
}

// ExpandQuery appends up to five long keywords from the last two user turns
// that the question does not already contain.
func ExpandQuery(question string, history []models.Message) string {
	if len(history) == 0 {
		return question
	}
	present := map[string]bool{}
	for _, w := range tokenize(question) {
		present[w] = true
	}
	var recent []string
	for i := len(history) - 1; i >= 0 && len(recent) < expansionTurns; i-- {
		if history[i].Role == models.RoleUser {
			recent = append(recent, history[i].Content)
		}
	}
	extra := make([]string, 0, expansionWords)
	for i := len(recent) - 1; i >= 0; i-- {
		for _, w := range uniqueTokens(recent[i], 4) {
			if len(extra) == expansionWords {
				break
			}
			if present[w] {
				continue
			}
			present[w] = true
			extra = append(extra, w)
		}
	}
	if len(extra) == 0 {
		return question
	}
	return question + " " + strings.Join(extra, " ")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// uniqueTokens keeps first occurrences of tokens longer than minLen runes.
func uniqueTokens(s string, minLen int) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range tokenize(s) {
		if utf8.RuneCountInString(w) <= minLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
