package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/rules"
)

// entryContext is the mutable rule context for one policy entry. A rule
// that disqualifies the entry sets skip; later rules then no-op through
// their Matches predicate.
type entryContext struct {
	entry domain.PolicyEntry
	tools map[string]domain.ToolDescriptor
	skip  *domain.SkippedEntry
}

func (c *entryContext) markSkipped(reason domain.SkipReason, detail string) {
	c.skip = &domain.SkippedEntry{
		ToolName:    c.entry.ToolName,
		OperationID: c.entry.OperationID,
		Reason:      reason,
		Detail:      detail,
	}
}

// Builder turns a policy document into an immutable catalog snapshot by
// running every entry through an ordered rule pipeline. Malformed entries
// degrade to skip reports; they never abort the build.
type Builder struct {
	engine  *rules.Engine[*entryContext]
	logger  *zap.Logger
	metrics domain.Metrics
}

func NewBuilder(logger *zap.Logger, metrics domain.Metrics) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		engine: rules.NewEngine[*entryContext](logger,
			enabledRule{},
			toolNameRule{},
			duplicateRule{},
			admitRule{},
		),
		logger:  logger.Named("catalog_builder"),
		metrics: metrics,
	}
}

// Build processes entries in document order, which makes first-occurrence
// duplicate resolution deterministic. Only rule faults (a rule bug or
// cancellation) return an error; expected policy-level conditions become
// skip reports.
func (b *Builder) Build(ctx context.Context, doc domain.PolicyDocument) (*domain.CatalogSnapshot, []domain.SkippedEntry, error) {
	start := time.Now()
	tools := make(map[string]domain.ToolDescriptor)
	skipped := make([]domain.SkippedEntry, 0)

	for _, entry := range doc.Entries {
		ec := &entryContext{entry: entry, tools: tools}
		if err := b.engine.Run(ctx, ec); err != nil {
			return nil, nil, fmt.Errorf("catalog rule pipeline: %w", err)
		}
		if ec.skip != nil {
			skipped = append(skipped, *ec.skip)
			if b.metrics != nil {
				b.metrics.RecordSkip(ec.skip.Reason)
			}
			b.logger.Debug("policy entry skipped",
				zap.String("tool", entry.ToolName),
				zap.String("operation", entry.OperationID),
				zap.String("reason", string(ec.skip.Reason)),
			)
		}
	}

	snapshot := &domain.CatalogSnapshot{
		Tools:         tools,
		SourceVersion: doc.SourceVersion,
		CreatedAt:     time.Now().UTC(),
		BuildID:       uuid.NewString(),
	}

	if b.metrics != nil {
		b.metrics.ObserveCatalogBuild(time.Since(start), len(tools), len(skipped))
	}
	b.logger.Info("catalog built",
		zap.String("sourceVersion", doc.SourceVersion),
		zap.Int("tools", len(tools)),
		zap.Int("skipped", len(skipped)),
	)
	return snapshot, skipped, nil
}

// enabledRule excludes entries the policy disabled.
type enabledRule struct{}

func (enabledRule) Name() string { return "enabled_validation" }
func (enabledRule) Order() int   { return 10 }

// Always matches: it is the first rule in the chain.
func (enabledRule) Matches(*entryContext) bool { return true }

func (enabledRule) Apply(_ context.Context, c *entryContext) error {
	if !c.entry.Enabled {
		c.markSkipped(domain.SkipDisabled, "entry disabled by policy")
	}
	return nil
}

// toolNameRule excludes entries without a usable tool name.
type toolNameRule struct{}

func (toolNameRule) Name() string { return "tool_name_validation" }
func (toolNameRule) Order() int   { return 20 }

func (toolNameRule) Matches(c *entryContext) bool { return c.skip == nil }

func (toolNameRule) Apply(_ context.Context, c *entryContext) error {
	if strings.TrimSpace(c.entry.ToolName) == "" {
		c.markSkipped(domain.SkipNoToolName, "entry has no tool name")
	}
	return nil
}

// duplicateRule keeps the first occurrence of a tool name and reports every
// later one.
type duplicateRule struct{}

func (duplicateRule) Name() string { return "duplicate_detection" }
func (duplicateRule) Order() int   { return 30 }

func (duplicateRule) Matches(c *entryContext) bool { return c.skip == nil }

func (duplicateRule) Apply(_ context.Context, c *entryContext) error {
	if _, exists := c.tools[c.entry.ToolName]; exists {
		c.markSkipped(domain.SkipDuplicate, fmt.Sprintf("duplicate tool name %q", c.entry.ToolName))
	}
	return nil
}

// admitRule materializes the descriptor for entries that survived
// validation.
type admitRule struct{}

func (admitRule) Name() string { return "admit" }
func (admitRule) Order() int   { return 40 }

func (admitRule) Matches(c *entryContext) bool { return c.skip == nil }

func (admitRule) Apply(_ context.Context, c *entryContext) error {
	c.tools[c.entry.ToolName] = domain.ToolDescriptor{
		ToolName:    c.entry.ToolName,
		Description: c.entry.Description,
		InputSchema: inputSchemaFor(c.entry),
		Endpoint: domain.EndpointDescriptor{
			RouteTemplate: c.entry.RouteTemplate,
			HTTPMethod:    strings.ToUpper(strings.TrimSpace(c.entry.HTTPMethod)),
			OperationID:   c.entry.OperationID,
		},
	}
	return nil
}

// inputSchemaFor derives a default object schema from the route template:
// one required string property per path placeholder. Richer schemas come
// from external enrichment, which is out of scope here.
func inputSchemaFor(entry domain.PolicyEntry) json.RawMessage {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}
	for _, param := range domain.RouteParams(entry.RouteTemplate) {
		schema.Properties[param] = &jsonschema.Schema{
			Type:        "string",
			Description: fmt.Sprintf("value for route parameter {%s}", param),
		}
		schema.Required = append(schema.Required, param)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}
