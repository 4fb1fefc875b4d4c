package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"toolgate/internal/domain"
)

// FilePolicyProvider reads the policy document from a YAML file. Every Get
// re-reads the file and yields a fresh immutable document; SourceVersion is
// the declared version or, when absent, a content fingerprint, so edits are
// picked up by the provider's version comparison without any push signal.
type FilePolicyProvider struct {
	path   string
	logger *zap.Logger
}

func NewFilePolicyProvider(path string, logger *zap.Logger) *FilePolicyProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilePolicyProvider{
		path:   path,
		logger: logger.Named("policy_file"),
	}
}

type rawPolicyEntry struct {
	ToolName      string `yaml:"toolName"`
	RouteTemplate string `yaml:"routeTemplate"`
	HTTPMethod    string `yaml:"httpMethod"`
	OperationID   string `yaml:"operationId"`
	Enabled       *bool  `yaml:"enabled"`
	Description   string `yaml:"description"`
}

type rawPolicyDocument struct {
	SourceVersion string           `yaml:"sourceVersion"`
	DenyByDefault bool             `yaml:"denyByDefault"`
	Tools         []rawPolicyEntry `yaml:"tools"`
}

func (p *FilePolicyProvider) Get(ctx context.Context) (domain.PolicyDocument, error) {
	if err := ctx.Err(); err != nil {
		return domain.PolicyDocument{}, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return domain.PolicyDocument{}, fmt.Errorf("read policy file: %w", err)
	}

	var raw rawPolicyDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return domain.PolicyDocument{}, fmt.Errorf("parse policy file %s: %w", p.path, err)
	}

	doc := domain.PolicyDocument{
		SourceVersion: strings.TrimSpace(raw.SourceVersion),
		DenyByDefault: raw.DenyByDefault,
		Entries:       make([]domain.PolicyEntry, 0, len(raw.Tools)),
	}
	if doc.SourceVersion == "" {
		sum := sha256.Sum256(data)
		doc.SourceVersion = hex.EncodeToString(sum[:])
	}

	for _, entry := range raw.Tools {
		enabled := !raw.DenyByDefault
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		doc.Entries = append(doc.Entries, domain.PolicyEntry{
			ToolName:      entry.ToolName,
			RouteTemplate: entry.RouteTemplate,
			HTTPMethod:    entry.HTTPMethod,
			OperationID:   entry.OperationID,
			Enabled:       enabled,
			Description:   entry.Description,
		})
	}

	return doc, nil
}

// Watch emits a signal when the policy file changes on disk. The channel is
// best effort: events are coalesced and a closed watcher ends the stream.
// Cancelling ctx closes the watcher and the channel.
func (p *FilePolicyProvider) Watch(ctx context.Context) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("policy file watch unavailable", zap.Error(err))
		return nil
	}
	// Watch the directory: editors replace files on save, which drops
	// per-file watches.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		p.logger.Warn("policy file watch unavailable", zap.String("path", p.path), zap.Error(err))
		_ = watcher.Close()
		return nil
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("policy file watch error", zap.Error(err))
			}
		}
	}()
	return changes
}

var _ domain.PolicyProvider = (*FilePolicyProvider)(nil)
