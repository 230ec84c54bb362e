package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"refdata/internal/auth"
	"refdata/internal/model"
	"refdata/internal/repository"
	"refdata/internal/resource"
	"refdata/internal/storage"
)

// Snapshot describes a published export of a resource.
type Snapshot struct {
	Resource    string    `json:"resource"`
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SnapshotService exports whole resources to object storage.
type SnapshotService interface {
	Publish(ctx context.Context, resource string) (*Snapshot, error)
}

type snapshotService struct {
	catalog *resource.Catalog
	repo    repository.ReferenceRepository
	store   storage.Storage
	expiry  time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewSnapshotService constructs a SnapshotService. Download URLs stay valid for expiry.
func NewSnapshotService(catalog *resource.Catalog, repo repository.ReferenceRepository, store storage.Storage, expiry time.Duration, log *zap.Logger) SnapshotService {
	if log == nil {
		log = zap.NewNop()
	}
	return &snapshotService{
		catalog: catalog,
		repo:    repo,
		store:   store,
		expiry:  expiry,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *snapshotService) Publish(ctx context.Context, name string) (*Snapshot, error) {
	def, ok := s.catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	for _, perm := range []string{auth.PermPublishSnapshots, def.Permission} {
		if !p.Has(perm) {
			return nil, &PermissionError{Principal: p.Name, Permission: perm}
		}
	}

	res, err := s.repo.List(ctx, def.Name, nil, repository.PageQuery{})
	if err != nil {
		return nil, &RepositoryError{Op: "list " + def.Name, Err: err}
	}

	items := res.Items
	restricted := false
	if !p.Has(auth.PermViewRestricted) {
		props, err := s.repo.PrivateProperties(ctx, def.Name)
		if err != nil {
			return nil, &RepositoryError{Op: "privacy settings " + def.Name, Err: err}
		}
		items, restricted, _ = stripProperties(items, props)
	}
	if items == nil {
		items = []model.ReferenceItem{}
	}

	body, err := json.Marshal(items)
	if err != nil {
		return nil, &IntegrationError{Op: "encode snapshot", Err: err}
	}

	now := s.now()
	key := fmt.Sprintf("snapshots/%s/%s.json", def.Name, now.Format("20060102T150405Z"))
	info, err := s.store.Put(ctx, key, bytes.NewReader(body), storage.PutObjectOptions{
		Size:        int64(len(body)),
		ContentType: "application/json",
		Metadata: map[string]string{
			"resource":   def.Name,
			"version":    strconv.Itoa(def.LatestVersion()),
			"count":      strconv.Itoa(len(items)),
			"restricted": strconv.FormatBool(restricted),
			"principal":  p.Name,
		},
	})
	if err != nil {
		return nil, &IntegrationError{Op: "upload snapshot", Err: err}
	}

	url, err := s.store.PresignGet(ctx, key, s.expiry)
	if err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.log.Error("failed to remove snapshot after presign error",
				zap.String("key", key), zap.Error(derr))
		}
		return nil, &IntegrationError{Op: "presign snapshot", Err: err}
	}

	s.log.Info("snapshot published",
		zap.String("resource", def.Name),
		zap.String("key", key),
		zap.Int("count", len(items)),
		zap.String("principal", p.Name),
	)

	return &Snapshot{
		Resource:    def.Name,
		Key:         key,
		Count:       len(items),
		Size:        info.Size,
		URL:         url,
		PublishedAt: now,
		ExpiresAt:   now.Add(s.expiry),
	}, nil
}
