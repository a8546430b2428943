package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"pricingcore/internal/pricing"
)

// Registry maps provider codes to ready instances. It is constructed once at
// startup, populated by explicit Register calls and injected wherever lookup
// is needed. After startup the map is read-mostly; the mutex exists for test
// isolation and the registration phase.
type Registry struct {
	log *logrus.Entry

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry logging through log. A nil logger is
// replaced with the logrus standard logger.
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		log:       log.WithField("component", "provider-registry"),
		providers: make(map[string]Provider),
	}
}

// Register adds p under its code. Registration is idempotent: re-registering
// a code overwrites the previous instance with a logged warning and never
// fails.
func (r *Registry) Register(p Provider) {
	code := p.Code()
	r.mu.Lock()
	_, replaced := r.providers[code]
	r.providers[code] = p
	r.mu.Unlock()
	if replaced {
		r.log.WithField("code", code).Warn("provider re-registered, previous instance replaced")
	} else {
		r.log.WithFields(logrus.Fields{"code": code, "name": p.DisplayName()}).Info("provider registered")
	}
}

// Lookup returns the provider registered under code. An unknown code yields a
// NotFound error naming the known codes.
func (r *Registry) Lookup(code string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[code]
	r.mu.RUnlock()
	if !ok {
		return nil, pricing.Errorf(pricing.KindNotFound,
			"unknown provider %q (known: %s)", code, strings.Join(r.Codes(), ", "))
	}
	return p, nil
}

// Codes returns all registered provider codes sorted for stable output.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.providers))
	for c := range r.providers {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// All returns every registered provider ordered by code.
func (r *Registry) All() []Provider {
	codes := r.Codes()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(codes))
	for _, c := range codes {
		out = append(out, r.providers[c])
	}
	return out
}

// Len reports the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Reset removes all registrations. Test isolation only.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.providers = make(map[string]Provider)
	r.mu.Unlock()
}

// String describes the registry for startup logs.
func (r *Registry) String() string {
	return fmt.Sprintf("registry(%s)", strings.Join(r.Codes(), ","))
}
