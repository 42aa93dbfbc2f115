package usecase

import (
	"context"
	"time"

	"taskvoice/internal/domain"
	"taskvoice/internal/phrases"
)

// deliver speaks a reply. Anything that cannot be played remotely falls back
// to the local speaker so the user always hears something.
func (c *SessionController) deliver(ctx context.Context, reply domain.Reply) {
	if ctx.Err() != nil {
		return
	}

	switch {
	case reply.Err != nil:
		c.logger.Warn("reply unavailable", "error", reply.Err)
		c.flagAPIError()
		c.events.SessionError(domain.ErrorCodeBackend, reply.Err.Error())
		c.speakLocal(ctx, phrases.Apology)
	case len(reply.Audio) > 0:
		if err := c.play(ctx, reply.Audio); err != nil {
			c.flagAPIError()
			c.events.SessionError(domain.ErrorCodePlayback, err.Error())
			c.speakLocal(ctx, reply.Text)
		}
	case reply.Text != "":
		if reply.SynthErr != nil {
			c.flagAPIError()
			c.events.SessionError(domain.ErrorCodeSynthesis, reply.SynthErr.Error())
		}
		c.speakLocal(ctx, reply.Text)
	default:
		c.speakLocal(ctx, phrases.Affirmative())
	}
}

// speakRemote synthesizes a short phrase with the remote voice and falls
// back to the local speaker.
func (c *SessionController) speakRemote(ctx context.Context, text string) {
	if c.synth != nil && c.player != nil {
		audio, err := c.synth.Synthesize(ctx, text)
		if err == nil {
			if err = c.play(ctx, audio); err == nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Debug("remote speech failed, using local voice", "error", err)
	}
	c.speakLocal(ctx, text)
}

func (c *SessionController) play(ctx context.Context, audio []byte) error {
	if c.player == nil {
		return errNoPlayer
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.player.Play(ctx, audio)
}

func (c *SessionController) speakLocal(ctx context.Context, text string) {
	if c.speaker == nil || text == "" {
		return
	}
	if err := c.speaker.Speak(ctx, text); err != nil && ctx.Err() == nil {
		c.logger.Warn("local speech failed", "error", err)
	}
}

// flagAPIError raises the transient error indicator. Repeated failures extend
// the window.
func (c *SessionController) flagAPIError() {
	c.mu.Lock()
	c.apiErrorGen++
	gen := c.apiErrorGen
	wasSet := c.apiError
	c.apiError = true
	if c.apiTimer != nil {
		c.apiTimer.Stop()
	}
	c.apiTimer = time.AfterFunc(c.cfg.ErrorIndicator, func() { c.clearAPIError(gen) })
	c.mu.Unlock()

	if !wasSet {
		c.events.APIErrorChanged(true)
	}
}

func (c *SessionController) clearAPIError(gen uint64) {
	c.mu.Lock()
	if c.apiErrorGen != gen || !c.apiError {
		c.mu.Unlock()
		return
	}
	c.apiError = false
	c.mu.Unlock()

	c.events.APIErrorChanged(false)
}
