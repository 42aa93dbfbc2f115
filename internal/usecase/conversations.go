package usecase

import (
	"context"

	"taskvoice/internal/domain"
)

// ThreadManager is the persistent side of the conversation history.
type ThreadManager interface {
	CurrentID(ctx context.Context) (string, error)
	Current(ctx context.Context) (domain.Thread, bool, error)
	List(ctx context.Context) ([]domain.Thread, error)
	Load(ctx context.Context, id string) (domain.Thread, error)
	Delete(ctx context.Context, id string) error
	ClearCurrent(ctx context.Context) error
	StartFresh(ctx context.Context) error
}

// Conversations keeps the controller's in-memory turns in step with the
// selected thread. Switching or clearing threads is refused mid-turn, and
// the controller cannot start listening while a switch is in progress.
type Conversations struct {
	threads    ThreadManager
	controller *SessionController
}

func NewConversations(threads ThreadManager, controller *SessionController) *Conversations {
	return &Conversations{threads: threads, controller: controller}
}

// Restore loads the persisted current thread into the controller.
func (c *Conversations) Restore(ctx context.Context) (domain.Thread, bool, error) {
	thread, ok, err := c.threads.Current(ctx)
	if err != nil || !ok {
		return domain.Thread{}, false, err
	}
	c.controller.LoadTurns(thread.Turns)
	return thread, true, nil
}

// List returns all threads, most recently updated first.
func (c *Conversations) List(ctx context.Context) ([]domain.Thread, error) {
	return c.threads.List(ctx)
}

func (c *Conversations) CurrentID(ctx context.Context) (string, error) {
	return c.threads.CurrentID(ctx)
}

// Select makes thread id current and shows its turns.
func (c *Conversations) Select(ctx context.Context, id string) (domain.Thread, error) {
	release, err := c.controller.holdIdle()
	if err != nil {
		return domain.Thread{}, err
	}
	defer release()

	thread, err := c.threads.Load(ctx, id)
	if err != nil {
		return domain.Thread{}, err
	}
	c.controller.LoadTurns(thread.Turns)
	return thread, nil
}

// New deselects the current thread. The next recorded turn opens a new one.
func (c *Conversations) New(ctx context.Context) error {
	release, err := c.controller.holdIdle()
	if err != nil {
		return err
	}
	defer release()

	if err := c.threads.StartFresh(ctx); err != nil {
		return err
	}
	c.controller.ClearTurns()
	return nil
}

// Clear empties the current thread.
func (c *Conversations) Clear(ctx context.Context) error {
	release, err := c.controller.holdIdle()
	if err != nil {
		return err
	}
	defer release()

	if err := c.threads.ClearCurrent(ctx); err != nil {
		return err
	}
	c.controller.ClearTurns()
	return nil
}

// Delete removes a thread. Deleting the current thread also empties the
// visible conversation.
func (c *Conversations) Delete(ctx context.Context, id string) error {
	current, err := c.threads.CurrentID(ctx)
	if err != nil {
		return err
	}
	if current == id {
		release, err := c.controller.holdIdle()
		if err != nil {
			return err
		}
		defer release()
	}
	if err := c.threads.Delete(ctx, id); err != nil {
		return err
	}
	if current == id {
		c.controller.ClearTurns()
	}
	return nil
}
