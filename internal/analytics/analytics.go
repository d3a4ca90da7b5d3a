package analytics

import (
	"context"
	"time"

	"realmkeeper/internal/storage"
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

// Summary is the guild overview shown by the stats command.
type Summary struct {
	Activity storage.ActivityTotals
	Audit    Report
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByLevel: make(map[string]int), ByEvent: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	return report, nil
}

func (s *Service) Summary(ctx context.Context, guildID string, since time.Time) (Summary, error) {
	totals, err := s.store.ActivityTotals(ctx, guildID)
	if err != nil {
		return Summary{}, err
	}
	report, err := s.Report(ctx, guildID, since)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Activity: totals, Audit: report}, nil
}
