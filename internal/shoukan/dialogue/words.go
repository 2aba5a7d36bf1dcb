package dialogue

import (
	"strings"

	"github.com/bdobrica/Shoukan/internal/shoukan/extract"
)

// cancelWords abort whatever is in progress. The whole message must match.
var cancelWords = []string{"cancel", "stop", "abort"}

// helpPhrases show the capability summary. The whole message must match.
var helpPhrases = []string{"help", "what can you do"}

// listWords trigger a resource listing when any appears as a whole word.
var listWords = []string{"list", "show", "what", "resources"}

// confirmationPositiveWords are replies that mean "yes, proceed".
var confirmationPositiveWords = []string{
	"yes", "y", "ok", "okay", "confirm", "proceed",
	"go ahead", "go", "create it", "do it", "continue",
	"sure", "yep", "yup", "affirmative",
}

// confirmationNegativeWords are replies that mean "no, cancel".
var confirmationNegativeWords = []string{
	"no", "n", "nope", "nevermind", "never mind", "forget it", "nah",
}

// normalise lower-cases text and strips surrounding space and trailing
// sentence punctuation.
func normalise(text string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".!?")
}

func isOneOf(lower string, words []string) bool {
	for _, w := range words {
		if lower == w {
			return true
		}
	}
	return false
}

// startsWithAny matches a word either as the whole reply or as its first
// word, so "yes please" confirms while "yesterday" does not.
func startsWithAny(lower string, words []string) bool {
	for _, w := range words {
		if lower == w || strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+",") {
			return true
		}
	}
	return false
}

func mentionsAny(lower string, words []string) bool {
	for _, w := range words {
		if extract.ContainsWord(lower, w) {
			return true
		}
	}
	return false
}

// confirmation classifies a reply to a confirmation prompt. ok is false when
// the reply is neither a yes nor a no.
func confirmation(lower string) (confirmed, ok bool) {
	switch {
	case startsWithAny(lower, confirmationNegativeWords):
		return false, true
	case startsWithAny(lower, confirmationPositiveWords):
		return true, true
	default:
		return false, false
	}
}
