package pipeline

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/region-lens/internal/failure"
)

// Session serializes pipeline runs for one consumer. Submitting a new photo
// cancels the run in flight, and only the newest run may publish its result
// as Latest.
type Session struct {
	p *Pipeline

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     *Result
	wg         sync.WaitGroup
}

// NewSession returns a session over p.
func (p *Pipeline) NewSession() *Session {
	return &Session{p: p}
}

// Submit starts a run for img and returns a channel that receives its result
// and is then closed. A superseded run delivers nothing; its channel is
// closed without a value.
func (s *Session) Submit(ctx context.Context, img image.Image) <-chan *Result {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan *Result, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer cancel()

		res, err := s.p.Run(runCtx, img)
		if err != nil {
			if runCtx.Err() != nil {
				s.p.logger.Debug("run superseded", zap.Uint64("generation", gen))
				return
			}
			res = &Result{
				RunID:  uuid.NewString(),
				Status: StatusDetectionFailed,
				Err:    err,
				Error:  err.Error(),
			}
			s.p.logger.Warn("run rejected", zap.String("kind", failure.KindOf(err)), zap.Error(err))
		}

		if !s.publish(gen, res) {
			return
		}
		out <- res
	}()
	return out
}

func (s *Session) publish(gen uint64, res *Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.latest = res
	return true
}

// Latest returns the result of the newest completed run, or nil.
func (s *Session) Latest() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Close cancels the run in flight and waits for it to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	s.mu.Unlock()
	s.wg.Wait()
}
