package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// QuestionStarters are first words that turn a sentence into a question.
var QuestionStarters = []string{
	"who", "what", "where", "when", "why", "how", "guess",
	"is", "are", "am", "was", "were",
	"can", "could", "should", "would", "will", "won't",
	"do", "does", "did", "don't", "doesn't", "didn't",
	"have", "has", "had", "haven't", "hasn't", "hadn't",
	"may", "might",
}

// ConnectorWords continue a sentence across recognizer segments.
var ConnectorWords = []string{"and", "but", "or", "so", "because", "however", "although"}

var (
	fillerWords = []string{"um", "uh", "like", "so", "well", "i", "the", "a", "and", "but", "or"}

	completeShortResponses = []string{"yes", "no", "okay", "ok", "sure", "thanks", "hello", "hi", "bye", "goodbye"}

	questionStarterSet = toSet(QuestionStarters)
	connectorSet       = toSet(ConnectorWords)
	fillerSet          = toSet(fillerWords)
	shortResponseSet   = toSet(completeShortResponses)
)

// Normalize collapses every whitespace run into a single space and trims.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// AddPunctuation terminates text with '?' when its first word is a question
// starter and '.' otherwise. Text already ending in . ? or ! is returned
// normalized but otherwise untouched, so the function is idempotent.
func AddPunctuation(text string) string {
	trimmed := Normalize(text)
	if trimmed == "" {
		return trimmed
	}

	switch trimmed[len(trimmed)-1] {
	case '.', '?', '!':
		return trimmed
	}

	if IsQuestion(trimmed) {
		return trimmed + "?"
	}
	return trimmed + "."
}

// IsQuestion reports whether the first word of text is a question starter.
func IsQuestion(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(strings.Trim(fields[0], `"'“”‘’,;:()`))
	_, ok := questionStarterSet[first]
	return ok
}

// Join appends a newly finalized recognizer segment to the text heard so far.
// A segment following a connector word is lowercased and joined; a
// capitalized segment after unpunctuated text starts a new sentence.
func Join(previous string, segment string) string {
	text := strings.TrimSpace(segment)
	if text == "" {
		return previous
	}

	prevTrim := strings.TrimSpace(previous)
	if prevTrim == "" {
		return capitalizeFirst(text)
	}

	last := prevTrim[len(prevTrim)-1]
	if !strings.ContainsRune(".?!,;:", rune(last)) {
		words := strings.Split(prevTrim, " ")
		lastWord := strings.ToLower(words[len(words)-1])
		if _, ok := connectorSet[lastWord]; ok {
			return previous + " " + lowercaseFirst(text)
		}
		if startsUpper(text) {
			return prevTrim + ". " + text
		}
	}

	return previous + " " + text
}

// IsIncomplete reports whether text looks like a stutter or a fragment that
// the speaker probably did not mean to send.
func IsIncomplete(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return true
	}

	words := strings.Fields(trimmed)
	if len(words) <= 2 {
		if len(words) == 1 {
			if _, ok := shortResponseSet[stripSentencePunct(words[0])]; ok {
				return false
			}
		}
		return true
	}

	if _, ok := fillerSet[stripSentencePunct(words[len(words)-1])]; ok {
		return true
	}

	for _, word := range words {
		if _, ok := fillerSet[stripSentencePunct(word)]; !ok {
			return false
		}
	}
	return true
}

func stripSentencePunct(word string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?':
			return -1
		}
		return r
	}, word)
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(r)) + text[size:]
}

func lowercaseFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToLower(r)) + text[size:]
}

func startsUpper(text string) bool {
	if text == "" {
		return false
	}
	return text[0] >= 'A' && text[0] <= 'Z'
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
