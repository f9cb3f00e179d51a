package classify

import (
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/retry"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// Router picks the classification client for a node. Offline mode and the
// keyword/offline providers never leave the process.
type Router struct {
	offline bool
	remote  Client
	keyword *KeywordClassifier
}

func NewRouter(cfg types.ClassificationConfig, keys repository.APIKeyRepository, policy retry.Policy) *Router {
	r := &Router{
		offline: cfg.Offline || isLocal(cfg.Provider),
		keyword: NewKeywordClassifier(),
	}
	if !r.offline {
		r.remote = NewOpenAIClient(cfg, keys, policy)
	}
	return r
}

// NewRouterWithClient routes remote providers to client
func NewRouterWithClient(client Client) *Router {
	return &Router{remote: client, keyword: NewKeywordClassifier()}
}

// For returns the client for a node's provider setting
func (r *Router) For(provider string) Client {
	if r.offline || r.remote == nil || isLocal(provider) {
		return r.keyword
	}
	return r.remote
}

// Fallback is the deterministic classifier used when a provider call fails
func (r *Router) Fallback() Client {
	return r.keyword
}

func isLocal(provider string) bool {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case types.ClassifierProviderOffline, types.ClassifierProviderKeyword:
		return true
	}
	return false
}
