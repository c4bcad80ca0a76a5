package config

import (
	"fmt"
	"strings"

	"destsync/internal/catalog"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config, e.g. "catalog.streams[1].generation_id".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// KnownKinds lists the storage kinds the validator accepts without a
// warning.
var KnownKinds = []string{"mssql", "mysql", "postgres", "sqlite"}

// ValidatePipeline performs static checks on p without mutating it.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will use the default job label",
		})
	}
	issues = append(issues, validateDestination(p.Destination)...)
	issues = append(issues, validateCatalog(p.Catalog, p.Destination)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	return issues
}

func validateDestination(d Destination) []Issue {
	var issues []Issue
	if strings.TrimSpace(d.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.kind",
			Message:  "destination.kind must not be empty",
		})
	} else if !contains(KnownKinds, d.Kind) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "destination.kind",
			Message:  fmt.Sprintf("unknown destination kind %q; ensure a matching backend is registered", d.Kind),
		})
	}
	if strings.TrimSpace(d.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.dsn",
			Message:  "destination.dsn must not be empty",
		})
	}
	if d.Kind != "" && d.Kind != "postgres" && !d.DisableTypeDedupe {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "destination.disable_type_dedupe",
			Message:  fmt.Sprintf("typing and deduping is only implemented for postgres; %s keeps raw tables only", d.Kind),
		})
	}
	return issues
}

func validateCatalog(c catalog.Catalog, d Destination) []Issue {
	var issues []Issue
	if len(c.Streams) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "catalog.streams",
			Message:  "catalog must configure at least one stream",
		})
	}
	for _, k := range c.Duplicates() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "catalog.streams",
			Message:  fmt.Sprintf("duplicate stream %s", k),
		})
	}
	for i, s := range c.Streams {
		path := fmt.Sprintf("catalog.streams[%d]", i)
		for _, fe := range s.Validate() {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + "." + fe.Field,
				Message:  fe.Message,
			})
		}
		if s.DestinationSyncMode == catalog.DestinationOverwrite && s.MinimumGenerationID == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".minimum_generation_id",
				Message:  "overwrite stream keeps earlier generations in the raw table; set minimum_generation_id to generation_id to truncate",
			})
		}
		if d.RequireExplicitSchema && s.Namespace == "" && d.DefaultSchema == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".namespace",
				Message:  "no namespace and no destination.default_schema while require_explicit_schema is set",
			})
		}
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.MemoryBudgetFraction < 0 || r.MemoryBudgetFraction > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.memory_budget_fraction",
			Message:  fmt.Sprintf("memory_budget_fraction=%g must be within [0, 1]", r.MemoryBudgetFraction),
		})
	}
	if r.MemoryBudgetBytes < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.memory_budget_bytes",
			Message:  "memory_budget_bytes must not be negative",
		})
	}
	if r.OptimalBatchBytes < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.optimal_batch_bytes",
			Message:  "optimal_batch_bytes must not be negative",
		})
	}
	if r.MemoryBudgetBytes > 0 && r.OptimalBatchBytes > r.MemoryBudgetBytes {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.optimal_batch_bytes",
			Message:  "optimal_batch_bytes exceeds memory_budget_bytes; flushes will be driven by backpressure",
		})
	}
	if r.FlushWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.flush_workers",
			Message:  "flush_workers must not be negative",
		})
	}
	if r.FlushInterval < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.flush_interval",
			Message:  "flush_interval must not be negative",
		})
	}
	return issues
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
