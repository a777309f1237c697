package segmenter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"slidecast/internal/models"
)

// Sentinel errors surfaced before any segmentation happens.
var (
	ErrContentTooShort = fmt.Errorf("content too short")
	ErrContentTooLong  = fmt.Errorf("content too long")
)

// speakingRateWPS converts a slide's word count into an estimated narration
// duration. The narration adapter reports the real duration later; this
// estimate only seeds slide timing and is clamped to the configured bounds.
const speakingRateWPS = 10.0

const maxTitleLen = 40

var whitespaceRe = regexp.MustCompile(`\s+`)

// Segment splits text into an ordered sequence of slide units.
//
// Sentences are accumulated greedily until the words-per-slide target is
// reached; a slide always closes at a sentence boundary. A single sentence
// longer than the target becomes its own slide. Once the configured maximum
// slide count is reached, all remaining sentences are appended to the final
// slide — nothing is ever dropped. The function is deterministic and has no
// side effects.
func Segment(text string, cfg models.GenerationConfig) ([]models.SlideUnit, error) {
	cleaned := cleanText(text)

	// Character counts, not bytes, so the bounds agree with what the submit
	// handler enforced for non-ASCII text.
	n := utf8.RuneCountInString(cleaned)
	if n < cfg.MinTextLength {
		return nil, fmt.Errorf("%w: %d chars, minimum %d", ErrContentTooShort, n, cfg.MinTextLength)
	}
	if n > cfg.MaxTextLength {
		return nil, fmt.Errorf("%w: %d chars, maximum %d", ErrContentTooLong, n, cfg.MaxTextLength)
	}

	sentences := SplitSentences(cleaned)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("%w: no sentences found", ErrContentTooShort)
	}

	groups := groupSentences(sentences, cfg.WordsPerSlide, cfg.MaxSlides)

	slides := make([]models.SlideUnit, 0, len(groups))
	for i, group := range groups {
		slideText := strings.Join(group, " ")
		words := len(strings.Fields(slideText))
		slides = append(slides, models.SlideUnit{
			Index:     i,
			Title:     slideTitle(group[0], i+1),
			Text:      slideText,
			WordCount: words,
			Duration:  clampDuration(float64(words)/speakingRateWPS, cfg),
		})
	}

	return slides, nil
}

// groupSentences greedily packs sentences into at most maxSlides groups.
// The word target closes a group at a sentence boundary; the final group
// absorbs everything left once the slide budget is spent.
func groupSentences(sentences []string, wordsPerSlide, maxSlides int) [][]string {
	var groups [][]string
	var current []string
	currentWords := 0

	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))

		// Final slide absorbs the remainder once the budget is spent.
		if len(groups) == maxSlides-1 && currentWords > 0 && currentWords+words > wordsPerSlide {
			current = append(current, sentence)
			currentWords += words
			continue
		}

		if currentWords > 0 && currentWords+words > wordsPerSlide {
			groups = append(groups, current)
			current = nil
			currentWords = 0
		}

		current = append(current, sentence)
		currentWords += words
	}

	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

// SplitSentences splits cleaned text at sentence-final punctuation. The
// terminator stays attached to its sentence, so joining the result with
// single spaces reproduces the cleaned input exactly.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Consume runs of terminators ("?!", "...") as one boundary.
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
		}
		// Only a boundary when followed by whitespace or end of text.
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// cleanText collapses whitespace runs so slide text and sentence boundaries
// are stable regardless of the source formatting.
func cleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// slideTitle derives a short heading from a slide's opening sentence.
func slideTitle(sentence string, slideNum int) string {
	words := strings.Fields(sentence)
	if len(words) > 6 {
		words = words[:6]
	}
	title := strings.Join(words, " ")
	title = strings.TrimRight(title, ".!?,;:")

	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen-3]) + "..."
	}
	if title == "" {
		return fmt.Sprintf("Section %d", slideNum)
	}
	return title
}

func clampDuration(d float64, cfg models.GenerationConfig) float64 {
	if d < cfg.MinSlideDuration {
		return cfg.MinSlideDuration
	}
	if d > cfg.MaxSlideDuration {
		return cfg.MaxSlideDuration
	}
	return d
}

// EstimateTotalDuration sums the target durations of a slide sequence.
func EstimateTotalDuration(slides []models.SlideUnit) float64 {
	var total float64
	for _, s := range slides {
		total += s.Duration
	}
	return total
}
