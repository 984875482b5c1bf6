package analytics

import (
	"context"
	"sort"
	"time"

	"welcome-gate/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Total   int
	ByLevel map[string]int
	ByEvent map[string]int
}

// Onboarding summarises onboarding runs by final state.
type Onboarding struct {
	Runs      int
	Returning int
	ByState   map[string]int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	report := Report{ByLevel: make(map[string]int), ByEvent: make(map[string]int)}
	if s.store == nil {
		return report, nil
	}
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	return report, nil
}

func (s *Service) Onboarding(ctx context.Context, guildID string, since time.Time) (Onboarding, error) {
	summary := Onboarding{ByState: make(map[string]int)}
	if s.store == nil {
		return summary, nil
	}
	runs, err := s.store.ListRuns(ctx, guildID, since)
	if err != nil {
		return Onboarding{}, err
	}
	for _, run := range runs {
		summary.Runs++
		if run.Returning {
			summary.Returning++
		}
		summary.ByState[run.State]++
	}
	return summary, nil
}

// Keys returns map keys sorted for stable rendering.
func Keys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
