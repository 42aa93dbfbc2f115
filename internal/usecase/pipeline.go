package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"taskvoice/internal/domain"
	"taskvoice/internal/ports"
)

// replyPipeline turns committed text into a spoken reply: submit the job,
// wait for the answer, synthesize it.
type replyPipeline struct {
	backend ports.JobBackend
	synth   ports.Synthesizer
	newID   func() string
	logger  *slog.Logger
}

// replyFetch is the in-flight result of one pipeline run. It is started at
// most once per turn, either speculatively or on commit.
type replyFetch struct {
	done  chan struct{}
	reply domain.Reply
}

func (p replyPipeline) start(ctx context.Context, text string) *replyFetch {
	f := &replyFetch{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.reply = p.run(ctx, text)
	}()
	return f
}

func (p replyPipeline) run(ctx context.Context, text string) domain.Reply {
	jobID := p.newID()
	logger := p.logger.With("job_id", jobID)

	if err := p.backend.Submit(ctx, jobID, text); err != nil {
		logger.Warn("job submission failed", "error", err)
		return domain.Reply{Err: fmt.Errorf("submit job: %w", err)}
	}
	logger.Debug("job accepted")

	answer, err := p.backend.Await(ctx, jobID)
	if err != nil {
		logger.Warn("job did not complete", "error", err)
		return domain.Reply{Accepted: true, Err: fmt.Errorf("await job: %w", err)}
	}

	reply := domain.Reply{Text: answer, Accepted: true}
	if answer == "" || p.synth == nil {
		return reply
	}

	audio, err := p.synth.Synthesize(ctx, answer)
	if err != nil {
		logger.Warn("speech synthesis failed", "error", err)
		reply.SynthErr = err
		return reply
	}
	reply.Audio = audio
	return reply
}

func (f *replyFetch) ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *replyFetch) wait(ctx context.Context) (domain.Reply, error) {
	select {
	case <-f.done:
		return f.reply, nil
	case <-ctx.Done():
		return domain.Reply{}, ctx.Err()
	}
}
