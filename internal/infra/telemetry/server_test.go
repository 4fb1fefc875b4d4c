package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

type fixedSnapshot struct {
	snapshot *domain.CatalogSnapshot
}

func (f fixedSnapshot) Current() *domain.CatalogSnapshot { return f.snapshot }

type fixedSkips struct {
	skipped []domain.SkippedEntry
}

func (f fixedSkips) SkippedEntries() []domain.SkippedEntry { return f.skipped }

type fixedHealth struct {
	records []domain.UpstreamRecord
}

func (f fixedHealth) UpstreamRecords() []domain.UpstreamRecord { return f.records }

func testSnapshot() *domain.CatalogSnapshot {
	return &domain.CatalogSnapshot{
		Tools: map[string]domain.ToolDescriptor{
			"listOrders": {
				ToolName: "listOrders",
				Endpoint: domain.EndpointDescriptor{RouteTemplate: "/orders", HTTPMethod: "GET"},
			},
		},
		SourceVersion: "v7",
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		BuildID:       "build-1",
	}
}

func TestManifestHandler_ReportsCurrentSnapshot(t *testing.T) {
	handler := manifestHandler("toolgated", fixedSnapshot{testSnapshot()})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/manifest", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &manifest))
	require.Equal(t, "toolgated", manifest.Service)
	require.Equal(t, 1, manifest.ToolCount)
	require.Equal(t, "v7", manifest.SourceVersion)
	require.Equal(t, "build-1", manifest.BuildID)
}

func TestManifestHandler_UnavailableBeforeFirstBuild(t *testing.T) {
	handler := manifestHandler("toolgated", fixedSnapshot{nil})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/manifest", nil))
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestGapReportHandler_ListsSkippedEntries(t *testing.T) {
	skipped := []domain.SkippedEntry{
		{ToolName: "deleteEverything", Reason: domain.SkipDisabled},
		{OperationID: "op-2", Reason: domain.SkipNoToolName},
	}
	handler := gapReportHandler(fixedSnapshot{testSnapshot()}, fixedSkips{skipped})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gapreport", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var report GapReport
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &report))
	require.Equal(t, "v7", report.SourceVersion)
	require.Len(t, report.Skipped, 2)
	require.Empty(t, report.UnusableRoutes)
}

func TestGapReportHandler_FlagsUnusableRouteTemplates(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Tools["getOrder"] = domain.ToolDescriptor{
		ToolName: "getOrder",
		Endpoint: domain.EndpointDescriptor{
			RouteTemplate: "orders/{id",
			HTTPMethod:    "GET",
			OperationID:   "GetOrder",
		},
	}

	handler := gapReportHandler(fixedSnapshot{snapshot}, fixedSkips{nil})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gapreport", nil))

	var report GapReport
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &report))
	require.Len(t, report.UnusableRoutes, 1)
	require.Equal(t, "getOrder", report.UnusableRoutes[0].ToolName)
	require.Equal(t, "orders/{id", report.UnusableRoutes[0].RouteTemplate)
}

func TestGapReportHandler_EmptySkipListStaysAnArray(t *testing.T) {
	handler := gapReportHandler(fixedSnapshot{testSnapshot()}, fixedSkips{nil})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gapreport", nil))

	require.Contains(t, recorder.Body.String(), `"skipped":[]`)
	require.Contains(t, recorder.Body.String(), `"unusableRoutes":[]`)
}

func TestHealthHandler_OkWithSnapshot(t *testing.T) {
	handler := healthHandler(fixedSnapshot{testSnapshot()}, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"status":"ok"`)
}

func TestHealthHandler_StartingBeforeFirstSnapshot(t *testing.T) {
	handler := healthHandler(fixedSnapshot{nil}, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"status":"starting"`)
}

func TestHealthHandler_DegradedWhenNoUpstreamHealthy(t *testing.T) {
	health := fixedHealth{records: []domain.UpstreamRecord{
		{ID: "billing", State: domain.UpstreamUnhealthy},
		{ID: "inventory", State: domain.UpstreamUnknown},
	}}
	handler := healthHandler(fixedSnapshot{testSnapshot()}, health)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"status":"degraded"`)
}

func TestHealthHandler_HealthyUpstreamKeepsOk(t *testing.T) {
	health := fixedHealth{records: []domain.UpstreamRecord{
		{ID: "billing", State: domain.UpstreamHealthy},
		{ID: "inventory", State: domain.UpstreamUnhealthy},
	}}
	handler := healthHandler(fixedSnapshot{testSnapshot()}, health)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
}
