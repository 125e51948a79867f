package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure; lexical search still works
	// when the vector index or provider is down.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results. IndexCount is only meaningful
// when the index check passed.
type Report struct {
	Status     Status
	Checks     map[string]CheckResult
	IndexCount int
}

// Service coordinates health checks across the retrieval backends.
type Service struct {
	index    IndexStats
	store    StorePinger
	provider ProviderChecker
}

// New creates a Service.
func New(index IndexStats, store StorePinger, provider ProviderChecker) *Service {
	return &Service{index: index, store: store, provider: provider}
}

// Check probes the vector index, the relational store, and the embedding
// provider configuration.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	var count int
	if stats := s.index.Stats(ctx); stats.Connected {
		checks["index"] = CheckOK
		count = stats.Count
	} else {
		checks["index"] = CheckError
	}

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
	} else {
		checks["store"] = CheckOK
	}

	if s.provider.Available() {
		checks["provider"] = CheckOK
	} else {
		checks["provider"] = CheckError
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, IndexCount: count}
}
