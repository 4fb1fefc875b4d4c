package catalog

import (
	"context"
	"sync"

	"toolgate/internal/domain"
)

// StaticPolicyProvider serves a fixed in-memory document. It has no change
// signal; consumers fall back to poll-on-use version comparison.
type StaticPolicyProvider struct {
	mu  sync.RWMutex
	doc domain.PolicyDocument
}

func NewStaticPolicyProvider(doc domain.PolicyDocument) *StaticPolicyProvider {
	return &StaticPolicyProvider{doc: doc}
}

func (p *StaticPolicyProvider) Get(ctx context.Context) (domain.PolicyDocument, error) {
	if err := ctx.Err(); err != nil {
		return domain.PolicyDocument{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc, nil
}

func (p *StaticPolicyProvider) Watch(context.Context) <-chan struct{} {
	return nil
}

// SetDocument swaps the served document; the next Get observes it.
func (p *StaticPolicyProvider) SetDocument(doc domain.PolicyDocument) {
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
}

var _ domain.PolicyProvider = (*StaticPolicyProvider)(nil)
