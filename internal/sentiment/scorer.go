package sentiment

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/azure/brand-mentions-bot/internal/models"
)

//go:embed lexicon.txt
var defaultLexicon string

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "nor": {}, "cannot": {}, "without": {},
	"don't": {}, "doesn't": {}, "didn't": {}, "isn't": {}, "wasn't": {}, "aren't": {},
	"weren't": {}, "can't": {}, "couldn't": {}, "won't": {}, "wouldn't": {}, "shouldn't": {},
	"dont": {}, "doesnt": {}, "didnt": {}, "isnt": {}, "wasnt": {}, "cant": {}, "wont": {},
}

// Lexicon maps lowercase words to an integer valence
type Lexicon map[string]int

// ParseLexicon reads "word<TAB>score" lines. Blank lines and lines starting
// with # are skipped. Scoring is per token, so multi-word entries are rejected.
func ParseLexicon(r io.Reader) (Lexicon, error) {
	lex := make(Lexicon)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("lexicon line %d: expected a single word and a score", line)
		}

		score, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("lexicon line %d: %w", line, err)
		}
		lex[strings.ToLower(fields[0])] = score
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lexicon: %w", err)
	}
	return lex, nil
}

// Scorer computes lexicon-based sentiment. It is read-only after construction
// and safe for concurrent use.
type Scorer struct {
	lexicon Lexicon
}

// New creates a scorer over lex
func New(lex Lexicon) *Scorer {
	return &Scorer{lexicon: lex}
}

var defaultScorer = func() *Scorer {
	lex, err := ParseLexicon(strings.NewReader(defaultLexicon))
	if err != nil {
		panic(fmt.Sprintf("sentiment: embedded lexicon: %v", err))
	}
	return New(lex)
}()

// Default returns the scorer backed by the embedded lexicon
func Default() *Scorer {
	return defaultScorer
}

// Score scores text with the embedded lexicon
func Score(text string) models.SentimentResult {
	return defaultScorer.Score(text)
}

// Score sums the valence of every known token. A token directly after a
// negator counts with the opposite sign. The label follows the sign only.
func (s *Scorer) Score(text string) models.SentimentResult {
	total := 0
	negate := false
	for _, token := range tokenize(text) {
		if v, ok := s.lexicon[token]; ok {
			if negate {
				v = -v
			}
			total += v
		}
		_, negate = negators[token]
	}

	return models.SentimentResult{
		Score: total,
		Label: models.LabelForScore(total),
	}
}

func tokenize(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
