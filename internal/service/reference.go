package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"refdata/internal/auth"
	"refdata/internal/cache"
	"refdata/internal/model"
	"refdata/internal/repository"
	"refdata/internal/resource"
	"refdata/internal/validator"
)

// ListQuery selects a page of a resource.
type ListQuery struct {
	Criteria repository.Criteria
	Offset   int `validate:"gte=0"`
	// Limit of zero returns every matching item.
	Limit int `validate:"gte=0"`
}

// ListResult is one page of items plus the ethos context of the response.
type ListResult struct {
	Items      []model.ReferenceItem
	Total      int
	Restricted bool
}

// ItemResult is a single item plus the ethos context of the response.
type ItemResult struct {
	Item       model.ReferenceItem
	Restricted bool
}

// ReferenceService coordinates reads of EEDM reference resources.
type ReferenceService interface {
	// List returns the items of resource matching q. bypassCache forces a reload
	// from the repository and refreshes the cached copy.
	List(ctx context.Context, resource string, q ListQuery, bypassCache bool) (*ListResult, error)

	// Get returns one item of resource by GUID.
	Get(ctx context.Context, resource, guid string, bypassCache bool) (*ItemResult, error)

	// Invalidate drops the cached list and privacy settings of resource.
	Invalidate(ctx context.Context, resource string) error
}

type referenceService struct {
	catalog *resource.Catalog
	repo    repository.ReferenceRepository
	cache   cache.Cache
	log     *zap.Logger
}

// NewReferenceService constructs a ReferenceService. store may be nil, in which
// case every read goes to the repository.
func NewReferenceService(catalog *resource.Catalog, repo repository.ReferenceRepository, store cache.Cache, log *zap.Logger) ReferenceService {
	if log == nil {
		log = zap.NewNop()
	}
	return &referenceService{catalog: catalog, repo: repo, cache: store, log: log}
}

func (s *referenceService) List(ctx context.Context, name string, q ListQuery, bypassCache bool) (*ListResult, error) {
	def, p, err := s.authorize(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := validator.Struct(q); err != nil {
		return nil, &ArgumentError{Argument: "paging", Err: err}
	}
	if hasBlankCriterion(q.Criteria) {
		return &ListResult{Items: []model.ReferenceItem{}}, nil
	}

	var (
		items []model.ReferenceItem
		total int
	)
	if s.cache == nil {
		res, err := s.repo.List(ctx, def.Name, q.Criteria, repository.PageQuery{Limit: q.Limit, Offset: q.Offset})
		if err != nil {
			return nil, &RepositoryError{Op: "list " + def.Name, Err: err}
		}
		items, total = res.Items, res.Total
	} else {
		all, err := s.loadAll(ctx, def.Name, bypassCache)
		if err != nil {
			return nil, err
		}
		items, total = page(filter(all, q.Criteria), q.Offset, q.Limit)
	}

	items, restricted, err := s.applyPrivacy(ctx, def.Name, p, bypassCache, items)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Total: total, Restricted: restricted}, nil
}

func (s *referenceService) Get(ctx context.Context, name, guid string, bypassCache bool) (*ItemResult, error) {
	def, p, err := s.authorize(ctx, name)
	if err != nil {
		return nil, err
	}
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return nil, ErrGUIDRequired
	}

	item, err := s.find(ctx, def.Name, guid, bypassCache)
	if err != nil {
		return nil, err
	}

	items, restricted, err := s.applyPrivacy(ctx, def.Name, p, bypassCache, []model.ReferenceItem{*item})
	if err != nil {
		return nil, err
	}
	return &ItemResult{Item: items[0], Restricted: restricted}, nil
}

func (s *referenceService) Invalidate(ctx context.Context, name string) error {
	def, ok := s.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	p, ok := auth.FromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if !p.Has(auth.PermManageCache) {
		return &PermissionError{Principal: p.Name, Permission: auth.PermManageCache}
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, def.Name+":all", def.Name+":privacy"); err != nil {
		return &IntegrationError{Op: "invalidate " + def.Name, Err: err}
	}
	s.log.Info("cache invalidated", zap.String("resource", def.Name), zap.String("principal", p.Name))
	return nil
}

func (s *referenceService) authorize(ctx context.Context, name string) (resource.Definition, *auth.Principal, error) {
	def, ok := s.catalog.Lookup(name)
	if !ok {
		return resource.Definition{}, nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	p, ok := auth.FromContext(ctx)
	if !ok {
		return def, nil, ErrUnauthenticated
	}
	if !p.Has(def.Permission) {
		return def, nil, &PermissionError{Principal: p.Name, Permission: def.Permission}
	}
	return def, p, nil
}

// find looks in the cached list first and falls back to the repository, which
// stays authoritative for items created after the list was cached.
func (s *referenceService) find(ctx context.Context, name, guid string, bypassCache bool) (*model.ReferenceItem, error) {
	if s.cache != nil && !bypassCache {
		all, err := s.loadAll(ctx, name, false)
		if err == nil {
			for i := range all {
				if all[i].ID == guid {
					return &all[i], nil
				}
			}
		} else {
			s.log.Warn("cached lookup failed, querying repository",
				zap.String("resource", name), zap.Error(err))
		}
	}

	item, err := s.repo.FindByID(ctx, name, guid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, name, guid)
		}
		return nil, &RepositoryError{Op: "find " + name, Err: err}
	}
	return item, nil
}

func (s *referenceService) loadAll(ctx context.Context, name string, bypassCache bool) ([]model.ReferenceItem, error) {
	return cached(ctx, s, name+":all", bypassCache, func(ctx context.Context) ([]model.ReferenceItem, error) {
		res, err := s.repo.List(ctx, name, nil, repository.PageQuery{})
		if err != nil {
			return nil, &RepositoryError{Op: "list " + name, Err: err}
		}
		return res.Items, nil
	})
}

func (s *referenceService) privateProperties(ctx context.Context, name string, bypassCache bool) ([]string, error) {
	return cached(ctx, s, name+":privacy", bypassCache, func(ctx context.Context) ([]string, error) {
		props, err := s.repo.PrivateProperties(ctx, name)
		if err != nil {
			return nil, &RepositoryError{Op: "privacy settings " + name, Err: err}
		}
		return props, nil
	})
}

// applyPrivacy strips properties hidden by the data-privacy settings unless p may see them.
func (s *referenceService) applyPrivacy(ctx context.Context, name string, p *auth.Principal, bypassCache bool, items []model.ReferenceItem) ([]model.ReferenceItem, bool, error) {
	if p.Has(auth.PermViewRestricted) || len(items) == 0 {
		return items, false, nil
	}
	props, err := s.privateProperties(ctx, name, bypassCache)
	if err != nil {
		return nil, false, err
	}
	return stripProperties(items, props)
}

func stripProperties(items []model.ReferenceItem, props []string) ([]model.ReferenceItem, bool, error) {
	if len(props) == 0 {
		return items, false, nil
	}
	out := make([]model.ReferenceItem, len(items))
	restricted := false
	for i, item := range items {
		stripped, dropped := item.Without(props)
		out[i] = stripped
		restricted = restricted || dropped
	}
	return out, restricted, nil
}

// cached serves key from the cache unless bypassCache is set, loading and
// storing it on a miss. Cache failures degrade to a plain load.
func cached[T any](ctx context.Context, s *referenceService, key string, bypassCache bool, load func(context.Context) (T, error)) (T, error) {
	if s.cache == nil {
		return load(ctx)
	}

	if !bypassCache {
		b, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			var v T
			if err := json.Unmarshal(b, &v); err == nil {
				return v, nil
			}
			s.log.Warn("discarding undecodable cache entry", zap.String("key", key))
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return v, &IntegrationError{Op: "encode " + key, Err: err}
	}
	if err := s.cache.Set(ctx, key, b); err != nil {
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// hasBlankCriterion reports whether any filter asks for an empty value, which no item can match.
func hasBlankCriterion(c repository.Criteria) bool {
	for _, v := range c {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

func filter(items []model.ReferenceItem, c repository.Criteria) []model.ReferenceItem {
	if len(c) == 0 {
		return items
	}
	out := make([]model.ReferenceItem, 0, len(items))
	for _, item := range items {
		if c.Matches(item) {
			out = append(out, item)
		}
	}
	return out
}

// page slices items by offset and limit and returns the slice with the unpaged total.
func page(items []model.ReferenceItem, offset, limit int) ([]model.ReferenceItem, int) {
	total := len(items)
	if offset >= total {
		return []model.ReferenceItem{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return items[offset:end], total
}
