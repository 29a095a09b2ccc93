package backend

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// StubDriver satisfies Driver for scaler kinds spec.md names but
// original_source ships no scheduler implementation for (bare metal,
// Windows, VM — see DESIGN.md Open Question). Every call fails with
// KindUnavailable rather than silently no-op'ing, so a misconfigured
// deployment surfaces immediately instead of leaking placements.
type StubDriver struct {
	Kind string
}

func (s *StubDriver) unavailable() error {
	return apierrors.NewUnavailable("%s driver not configured", s.Kind)
}

func (s *StubDriver) Setup(_ context.Context, _ string) error {
	return s.unavailable()
}

func (s *StubDriver) ResourcesAvailable(_ context.Context, _ string, _ models.SystemSettings) (map[string]models.Resources, error) {
	return nil, s.unavailable()
}

func (s *StubDriver) Spawn(_ context.Context, _ string, spawns []Spawn) map[string]error {
	errs := make(map[string]error, len(spawns))
	for _, sp := range spawns {
		errs[sp.Name] = s.unavailable()
	}
	return errs
}

func (s *StubDriver) Delete(_ context.Context, _ string, deletes []Delete) []DeleteResult {
	out := make([]DeleteResult, len(deletes))
	for i, d := range deletes {
		out[i] = DeleteResult{Name: d.Name, Deleted: false, Err: s.unavailable()}
	}
	return out
}

func (s *StubDriver) ClearTerminal(_ context.Context, _ string, _ map[string]bool) ([]TerminalWorker, error) {
	return nil, s.unavailable()
}
