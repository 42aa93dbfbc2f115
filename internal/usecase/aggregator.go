package usecase

import (
	"strings"
	"sync"

	"taskvoice/internal/domain"
	"taskvoice/internal/transcript"
)

// transcriptAggregator assembles recognizer output into the text shown while
// listening: finalized segments joined into sentences plus the latest
// interim hypothesis.
type transcriptAggregator struct {
	mu      sync.Mutex
	final   string
	interim string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add records one provider event and reports whether it carried text.
func (a *transcriptAggregator) Add(event domain.TranscriptEvent) bool {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Kind == domain.TranscriptKindFinal {
		a.final = transcript.Join(a.final, text)
		a.interim = ""
		return true
	}
	a.interim = text
	return true
}

func (a *transcriptAggregator) Transcript() domain.Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.Transcript{Final: a.final, Interim: a.interim}
}
