package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/streamlights/internal/rehearsal"
)

// RehearsalService runs a rehearsal script against the live pipeline.
type RehearsalService struct {
	runner *rehearsal.Runner
	script string // empty = built-in cycle
}

// NewRehearsalService creates a RehearsalService feeding sink.
func NewRehearsalService(sink rehearsal.Sink, script string) *RehearsalService {
	return &RehearsalService{
		runner: rehearsal.NewRunner(sink),
		script: script,
	}
}

// Start runs the script in the background; the app keeps serving afterwards.
func (s *RehearsalService) Start(ctx context.Context) {
	go func() {
		if err := s.runner.RunFile(ctx, s.script); err != nil {
			log.Error().Err(err).Msg("Rehearsal failed")
		}
	}()
}
