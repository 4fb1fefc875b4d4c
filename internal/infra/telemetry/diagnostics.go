package telemetry

import (
	"sort"
	"time"

	"toolgate/internal/domain"
)

// SnapshotSource exposes the current catalog snapshot for diagnostics.
// Both the local catalog provider and the gateway aggregator satisfy it.
type SnapshotSource interface {
	Current() *domain.CatalogSnapshot
}

// SkipSource reports the policy entries excluded from the last build.
type SkipSource interface {
	SkippedEntries() []domain.SkippedEntry
}

// HealthSource reports per-upstream health for the gateway.
type HealthSource interface {
	UpstreamRecords() []domain.UpstreamRecord
}

// Manifest is the /manifest payload: a compact identity card for the
// snapshot currently being served.
type Manifest struct {
	Service       string    `json:"service"`
	ToolCount     int       `json:"toolCount"`
	SourceVersion string    `json:"sourceVersion"`
	BuiltAt       time.Time `json:"builtAt"`
	BuildID       string    `json:"buildId"`
}

// GapReport is the /gapreport payload: everything the policy names that
// the catalog does not serve, with the reason it was excluded, plus served
// tools whose route template cannot actually be invoked.
type GapReport struct {
	SourceVersion  string                `json:"sourceVersion"`
	Skipped        []domain.SkippedEntry `json:"skipped"`
	UnusableRoutes []RouteGap            `json:"unusableRoutes"`
}

// RouteGap names a catalog tool whose route template is syntactically
// unusable. Such entries pass the build rules and appear in tools/list, but
// every call to them fails at route expansion.
type RouteGap struct {
	ToolName      string `json:"toolName"`
	OperationID   string `json:"operationId,omitempty"`
	RouteTemplate string `json:"routeTemplate"`
}

func buildManifest(service string, snapshot *domain.CatalogSnapshot) Manifest {
	if snapshot == nil {
		return Manifest{Service: service}
	}
	return Manifest{
		Service:       service,
		ToolCount:     len(snapshot.Tools),
		SourceVersion: snapshot.SourceVersion,
		BuiltAt:       snapshot.CreatedAt,
		BuildID:       snapshot.BuildID,
	}
}

func buildGapReport(snapshot *domain.CatalogSnapshot, skipped []domain.SkippedEntry) GapReport {
	report := GapReport{
		Skipped:        skipped,
		UnusableRoutes: []RouteGap{},
	}
	if report.Skipped == nil {
		report.Skipped = []domain.SkippedEntry{}
	}
	if snapshot == nil {
		return report
	}
	report.SourceVersion = snapshot.SourceVersion

	names := make([]string, 0, len(snapshot.Tools))
	for name := range snapshot.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tool := snapshot.Tools[name]
		if domain.ValidRouteTemplate(tool.Endpoint.RouteTemplate) {
			continue
		}
		report.UnusableRoutes = append(report.UnusableRoutes, RouteGap{
			ToolName:      tool.ToolName,
			OperationID:   tool.Endpoint.OperationID,
			RouteTemplate: tool.Endpoint.RouteTemplate,
		})
	}
	return report
}

// HealthReport is the /healthz payload.
type HealthReport struct {
	Status    string                  `json:"status"`
	Snapshot  bool                    `json:"snapshot"`
	Upstreams []domain.UpstreamRecord `json:"upstreams,omitempty"`
}

func buildHealthReport(snapshot *domain.CatalogSnapshot, health HealthSource) HealthReport {
	report := HealthReport{
		Status:   "ok",
		Snapshot: snapshot != nil,
	}
	if snapshot == nil {
		report.Status = "starting"
	}
	if health != nil {
		records := health.UpstreamRecords()
		report.Upstreams = records
		healthy := 0
		for _, record := range records {
			if record.State == domain.UpstreamHealthy {
				healthy++
			}
		}
		if len(records) > 0 && healthy == 0 {
			report.Status = "degraded"
		}
	}
	return report
}
