// Package phrases holds the short canned lines spoken while the assistant
// works.
package phrases

import "math/rand/v2"

var thinking = []string{
	"Let me take a look.",
	"Looking into it.",
	"One moment please.",
	"Let me check on that.",
	"Give me a second.",
	"Checking now.",
	"On it.",
	"Let me see.",
	"Working on it.",
	"Just a moment.",
	"Let me find out.",
	"Hang on.",
	"Looking that up.",
	"Let me dig into that.",
	"One sec.",
	"Pulling that up now.",
	"Let me get that for you.",
	"Searching for that.",
	"Let me look into this.",
	"Hold on a moment.",
	"Getting that information.",
	"Let me think about that.",
	"Processing your request.",
	"Checking on that now.",
	"Give me just a moment.",
}

var affirmatives = []string{
	"Sure thing.",
	"Got it.",
	"Okay.",
	"Understood.",
	"On it.",
	"Sounds good.",
	"I hear you.",
	"Roger that.",
	"Done.",
}

const (
	// Apology is spoken when no reply could be obtained.
	Apology = "Sorry, I couldn't get a response."
	// AccessGranted is spoken when the lockout gate opens.
	AccessGranted = "Access granted."
)

// Thinking returns a random filler line for the wait on the backend.
func Thinking() string {
	return thinking[rand.IntN(len(thinking))]
}

// Affirmative returns a random generic acknowledgment.
func Affirmative() string {
	return affirmatives[rand.IntN(len(affirmatives))]
}
