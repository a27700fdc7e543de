package device

import (
	"context"
)

// serialized guards an Adapter with a one-slot semaphore.
// A channel is used instead of sync.Mutex so waiters can give up on ctx.
type serialized struct {
	inner Adapter
	sem   chan struct{}
}

// Serialize returns an Adapter that runs at most one operation on a at a time.
// Callers waiting for the slot return ctx.Err() if ctx ends first.
func Serialize(a Adapter) Adapter {
	if s, ok := a.(*serialized); ok {
		return s
	}
	return &serialized{inner: a, sem: make(chan struct{}, 1)}
}

func (s *serialized) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *serialized) release() { <-s.sem }

func (s *serialized) Status(ctx context.Context) (Status, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.inner.Status(ctx)
}

func (s *serialized) SetChannel(ctx context.Context, channel int, on bool) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.inner.SetChannel(ctx, channel, on)
}
