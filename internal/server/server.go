package server

import (
	"context"
	"errors"
	"net/http"
)

// New builds a fully configured server.
func New(ctx context.Context) (*Server, error) {
	return NewServerBuilder().Build(ctx)
}

// Start runs the workers, the scheduler and the HTTP listener. It blocks until
// the listener stops. Start after Stop returns immediately.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.stopped {
		s.lifecycle.Unlock()
		return nil
	}
	stopOnDone := context.AfterFunc(ctx, s.cancel)
	defer stopOnDone()

	s.JobProcessor.Start(s.runCtx)
	if err := s.Scheduler.Start(s.runCtx); err != nil {
		s.lifecycle.Unlock()
		return err
	}
	s.lifecycle.Unlock()

	s.Logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down, stops scheduling and waits for running scrapes.
// It is safe to call while Start is still starting up.
func (s *Server) Stop(ctx context.Context) error {
	s.Logger.Info().Msg("Stopping server")

	s.lifecycle.Lock()
	s.stopped = true
	s.lifecycle.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.Scheduler.Stop()
	s.cancel()
	s.JobProcessor.Wait()

	if closeErr := s.Store.Close(); closeErr != nil {
		s.Logger.Error().Err(closeErr).Msg("Failed to close store")
		err = errors.Join(err, closeErr)
	}
	return err
}
