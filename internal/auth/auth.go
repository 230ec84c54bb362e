// Package auth maps API keys to principals and carries the principal through a request context.
package auth

import (
	"context"
	"fmt"
	"strings"
)

const (
	// Wildcard grants every permission.
	Wildcard = "*"
	// PermViewRestricted lets a caller see properties hidden by data-privacy settings.
	PermViewRestricted = "VIEW.RESTRICTED.DATA"
	// PermPublishSnapshots allows exporting a resource to object storage.
	PermPublishSnapshots = "PUBLISH.SNAPSHOTS"
	// PermManageCache allows dropping cached resource data.
	PermManageCache = "MANAGE.CACHE"
)

// Principal is the caller a request runs as.
type Principal struct {
	Name        string
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal holding perms.
func NewPrincipal(name string, perms ...string) *Principal {
	p := &Principal{Name: name, Permissions: make(map[string]struct{}, len(perms))}
	for _, perm := range perms {
		p.Permissions[perm] = struct{}{}
	}
	return p
}

// Anonymous is used for every request when no API keys are configured.
func Anonymous() *Principal {
	return NewPrincipal("anonymous", Wildcard)
}

// Has reports whether p holds perm. An empty perm is always held.
func (p *Principal) Has(perm string) bool {
	if p == nil {
		return false
	}
	if perm == "" {
		return true
	}
	if _, ok := p.Permissions[Wildcard]; ok {
		return true
	}
	_, ok := p.Permissions[perm]
	return ok
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// KeyStore resolves API keys to principals.
type KeyStore struct {
	keys map[string]*Principal
}

// ParseKeyStore reads the API_KEYS format:
//
//	key=name:PERM1|PERM2;key2=name2:*
//
// An empty value yields an empty store, which disables authentication.
func ParseKeyStore(raw string) (*KeyStore, error) {
	ks := &KeyStore{keys: make(map[string]*Principal)}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, rest, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("api key entry %q: expected key=name:permissions", entry)
		}
		name, perms, _ := strings.Cut(rest, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("api key entry %q: principal name is required", entry)
		}
		var list []string
		for _, perm := range strings.Split(perms, "|") {
			if perm = strings.TrimSpace(perm); perm != "" {
				list = append(list, perm)
			}
		}
		ks.keys[strings.TrimSpace(key)] = NewPrincipal(name, list...)
	}
	return ks, nil
}

// Enabled reports whether any key is configured.
func (ks *KeyStore) Enabled() bool {
	return ks != nil && len(ks.keys) > 0
}

// Resolve returns the principal owning key.
func (ks *KeyStore) Resolve(key string) (*Principal, bool) {
	if ks == nil {
		return nil, false
	}
	p, ok := ks.keys[key]
	return p, ok
}
