package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"refdata/internal/auth"
	cacheMocks "refdata/internal/cache/mocks"
	"refdata/internal/model"
	"refdata/internal/repository"
	repoMocks "refdata/internal/repository/mocks"
	"refdata/internal/resource"
)

func ctxAs(perms ...string) context.Context {
	return auth.WithPrincipal(context.Background(), auth.NewPrincipal("tester", perms...))
}

func cohorts() []model.ReferenceItem {
	return []model.ReferenceItem{
		{ID: "g1", Code: "ATH", Title: "Athletes", Attributes: map[string]any{"cohortType": "athletic", "sponsor": "NCAA"}},
		{ID: "g2", Code: "HON", Title: "Honors", Attributes: map[string]any{"cohortType": "academic"}},
		{ID: "g3", Code: "VET", Title: "Veterans", Attributes: map[string]any{"cohortType": "federal", "sponsor": "VA"}},
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestReferenceService_ListAuthorization(t *testing.T) {
	tests := []struct {
		name  string
		ctx   context.Context
		res   string
		check func(t *testing.T, err error)
	}{
		{
			name: "unknown resource",
			ctx:  ctxAs(auth.Wildcard),
			res:  "persons",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrResourceNotFound)
			},
		},
		{
			name: "no principal",
			ctx:  context.Background(),
			res:  "student-cohorts",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnauthenticated)
			},
		},
		{
			name: "missing permission",
			ctx:  ctxAs("VIEW.SOMETHING.ELSE"),
			res:  "student-cohorts",
			check: func(t *testing.T, err error) {
				var pe *PermissionError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "VIEW.STUDENT.COHORTS", pe.Permission)
				assert.Equal(t, "tester", pe.Principal)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockReferenceRepository)
			svc := NewReferenceService(resource.Default(), mRepo, nil, zap.NewNop())

			res, err := svc.List(tt.ctx, tt.res, ListQuery{}, false)

			assert.Nil(t, res)
			tt.check(t, err)
			mRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReferenceService_ListWithoutCache(t *testing.T) {
	mRepo := new(repoMocks.MockReferenceRepository)
	svc := NewReferenceService(resource.Default(), mRepo, nil, zap.NewNop())
	ctx := ctxAs("VIEW.STUDENT.COHORTS")

	criteria := repository.Criteria{"cohortType": "athletic"}
	mRepo.On("List", mock.Anything, "student-cohorts", criteria, repository.PageQuery{Limit: 10, Offset: 0}).
		Return(&repository.PageResult[model.ReferenceItem]{Items: cohorts()[:1], Total: 1}, nil)
	mRepo.On("PrivateProperties", mock.Anything, "student-cohorts").Return([]string{"sponsor"}, nil)

	res, err := svc.List(ctx, "student-cohorts", ListQuery{Criteria: criteria, Limit: 10}, false)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.True(t, res.Restricted)
	require.Len(t, res.Items, 1)
	assert.NotContains(t, res.Items[0].Attributes, "sponsor")
	assert.Equal(t, "athletic", res.Items[0].Attributes["cohortType"])
	mRepo.AssertExpectations(t)
}

func TestReferenceService_ListCached(t *testing.T) {
	ctx := ctxAs(auth.Wildcard)

	tests := []struct {
		name        string
		query       ListQuery
		bypassCache bool
		setupMocks  func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache)
		wantCodes   []string
		wantTotal   int
	}{
		{
			name:  "cache hit pages in memory",
			query: ListQuery{Offset: 1, Limit: 1},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(mustJSON(t, cohorts()), true, nil)
			},
			wantCodes: []string{"HON"},
			wantTotal: 3,
		},
		{
			name:  "cache miss loads and stores",
			query: ListQuery{Criteria: repository.Criteria{"cohortType": "federal"}},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(nil, false, nil)
				mRepo.On("List", mock.Anything, "student-cohorts", repository.Criteria(nil), repository.PageQuery{}).
					Return(&repository.PageResult[model.ReferenceItem]{Items: cohorts(), Total: 3}, nil)
				mCache.On("Set", mock.Anything, "student-cohorts:all", mock.Anything).Return(nil)
			},
			wantCodes: []string{"VET"},
			wantTotal: 1,
		},
		{
			name:        "bypass reloads and refreshes",
			bypassCache: true,
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mRepo.On("List", mock.Anything, "student-cohorts", repository.Criteria(nil), repository.PageQuery{}).
					Return(&repository.PageResult[model.ReferenceItem]{Items: cohorts()[:2], Total: 2}, nil)
				mCache.On("Set", mock.Anything, "student-cohorts:all", mock.Anything).Return(nil)
			},
			wantCodes: []string{"ATH", "HON"},
			wantTotal: 2,
		},
		{
			name:  "cache failures fall through",
			query: ListQuery{Criteria: repository.Criteria{"code": "ATH"}},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(nil, false, errors.New("redis down"))
				mRepo.On("List", mock.Anything, "student-cohorts", repository.Criteria(nil), repository.PageQuery{}).
					Return(&repository.PageResult[model.ReferenceItem]{Items: cohorts(), Total: 3}, nil)
				mCache.On("Set", mock.Anything, "student-cohorts:all", mock.Anything).Return(errors.New("redis down"))
			},
			wantCodes: []string{"ATH"},
			wantTotal: 1,
		},
		{
			name:  "entry with a non-string code is reloaded",
			query: ListQuery{Criteria: repository.Criteria{"code": "HON"}},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return([]byte(`[{"id":"g2","code":7,"title":"Honors"}]`), true, nil)
				mRepo.On("List", mock.Anything, "student-cohorts", repository.Criteria(nil), repository.PageQuery{}).
					Return(&repository.PageResult[model.ReferenceItem]{Items: cohorts(), Total: 3}, nil)
				mCache.On("Set", mock.Anything, "student-cohorts:all", mock.Anything).Return(nil)
			},
			wantCodes: []string{"HON"},
			wantTotal: 1,
		},
		{
			name:       "empty criteria value matches nothing",
			query:      ListQuery{Criteria: repository.Criteria{"title": " "}},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {},
			wantCodes:  []string{},
			wantTotal:  0,
		},
		{
			name:  "offset past the end",
			query: ListQuery{Offset: 10, Limit: 5},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(mustJSON(t, cohorts()), true, nil)
			},
			wantCodes: []string{},
			wantTotal: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockReferenceRepository)
			mCache := new(cacheMocks.MockCache)
			tt.setupMocks(mRepo, mCache)

			svc := NewReferenceService(resource.Default(), mRepo, mCache, zap.NewNop())
			res, err := svc.List(ctx, "student-cohorts", tt.query, tt.bypassCache)

			require.NoError(t, err)
			assert.False(t, res.Restricted)
			assert.Equal(t, tt.wantTotal, res.Total)
			codes := make([]string, 0, len(res.Items))
			for _, item := range res.Items {
				codes = append(codes, item.Code)
			}
			assert.Equal(t, tt.wantCodes, codes)
			mRepo.AssertExpectations(t)
			mCache.AssertExpectations(t)
		})
	}
}

func TestReferenceService_ListErrors(t *testing.T) {
	t.Run("negative offset", func(t *testing.T) {
		svc := NewReferenceService(resource.Default(), new(repoMocks.MockReferenceRepository), nil, nil)

		_, err := svc.List(ctxAs(auth.Wildcard), "academic-levels", ListQuery{Offset: -1}, false)

		var ae *ArgumentError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "paging", ae.Argument)
	})

	t.Run("repository failure", func(t *testing.T) {
		mRepo := new(repoMocks.MockReferenceRepository)
		mRepo.On("List", mock.Anything, "academic-levels", repository.Criteria(nil), repository.PageQuery{}).
			Return(nil, errors.New("connection refused"))
		svc := NewReferenceService(resource.Default(), mRepo, nil, nil)

		_, err := svc.List(ctxAs(auth.Wildcard), "academic-levels", ListQuery{}, false)

		var re *RepositoryError
		require.ErrorAs(t, err, &re)
		assert.EqualError(t, err, "repository list academic-levels: connection refused")
	})

	t.Run("privacy settings failure", func(t *testing.T) {
		mRepo := new(repoMocks.MockReferenceRepository)
		mRepo.On("List", mock.Anything, "academic-levels", repository.Criteria(nil), repository.PageQuery{}).
			Return(&repository.PageResult[model.ReferenceItem]{Items: cohorts(), Total: 3}, nil)
		mRepo.On("PrivateProperties", mock.Anything, "academic-levels").Return(nil, errors.New("timeout"))
		svc := NewReferenceService(resource.Default(), mRepo, nil, nil)

		_, err := svc.List(ctxAs(), "academic-levels", ListQuery{}, false)

		var re *RepositoryError
		assert.ErrorAs(t, err, &re)
	})
}

func TestReferenceService_Get(t *testing.T) {
	item := cohorts()[2]

	tests := []struct {
		name           string
		guid           string
		bypassCache    bool
		perms          []string
		setupMocks     func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache)
		wantErr        error
		wantRestricted bool
		wantSponsor    bool
	}{
		{
			name:    "blank guid",
			guid:    "  ",
			perms:   []string{auth.Wildcard},
			wantErr: ErrGUIDRequired,
		},
		{
			name:  "found in cached list",
			guid:  "g3",
			perms: []string{"VIEW.STUDENT.COHORTS"},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(mustJSON(t, cohorts()), true, nil)
				mCache.On("Get", mock.Anything, "student-cohorts:privacy").Return(mustJSON(t, []string{"sponsor"}), true, nil)
			},
			wantRestricted: true,
		},
		{
			name:  "not cached falls back to repository",
			guid:  "g9",
			perms: []string{auth.Wildcard},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(mustJSON(t, cohorts()), true, nil)
				mRepo.On("FindByID", mock.Anything, "student-cohorts", "g9").Return(&model.ReferenceItem{
					ID: "g9", Code: "NEW", Title: "New", Attributes: map[string]any{"sponsor": "State"},
				}, nil)
			},
			wantSponsor: true,
		},
		{
			name:        "bypass goes to repository",
			guid:        "g3",
			bypassCache: true,
			perms:       []string{auth.PermViewRestricted, "VIEW.STUDENT.COHORTS"},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mRepo.On("FindByID", mock.Anything, "student-cohorts", "g3").Return(&item, nil)
			},
			wantSponsor: true,
		},
		{
			name:  "not found",
			guid:  "missing",
			perms: []string{auth.Wildcard},
			setupMocks: func(mRepo *repoMocks.MockReferenceRepository, mCache *cacheMocks.MockCache) {
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(mustJSON(t, cohorts()), true, nil)
				mRepo.On("FindByID", mock.Anything, "student-cohorts", "missing").Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockReferenceRepository)
			mCache := new(cacheMocks.MockCache)
			if tt.setupMocks != nil {
				tt.setupMocks(mRepo, mCache)
			}

			svc := NewReferenceService(resource.Default(), mRepo, mCache, zap.NewNop())
			res, err := svc.Get(ctxAs(tt.perms...), "student-cohorts", tt.guid, tt.bypassCache)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.guid, res.Item.ID)
				assert.Equal(t, tt.wantRestricted, res.Restricted)
				_, hasSponsor := res.Item.Attributes["sponsor"]
				assert.Equal(t, tt.wantSponsor, hasSponsor)
			}
			mRepo.AssertExpectations(t)
			mCache.AssertExpectations(t)
		})
	}
}

func TestReferenceService_GetRepositoryError(t *testing.T) {
	mRepo := new(repoMocks.MockReferenceRepository)
	mRepo.On("FindByID", mock.Anything, "academic-levels", "g1").Return(nil, errors.New("bad connection"))
	svc := NewReferenceService(resource.Default(), mRepo, nil, nil)

	_, err := svc.Get(ctxAs(auth.Wildcard), "academic-levels", "g1", false)

	var re *RepositoryError
	require.ErrorAs(t, err, &re)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPage(t *testing.T) {
	items := cohorts()

	got, total := page(items, 0, 0)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, total)

	got, total = page(items, 2, 5)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, total)

	got, _ = page(nil, 0, 10)
	assert.Empty(t, got)
}

func TestReferenceService_Invalidate(t *testing.T) {
	t.Run("drops both keys", func(t *testing.T) {
		mCache := new(cacheMocks.MockCache)
		mCache.On("Delete", mock.Anything, []string{"student-cohorts:all", "student-cohorts:privacy"}).Return(nil)
		svc := NewReferenceService(resource.Default(), new(repoMocks.MockReferenceRepository), mCache, nil)

		err := svc.Invalidate(ctxAs(auth.PermManageCache), "student-cohorts")

		require.NoError(t, err)
		mCache.AssertExpectations(t)
	})

	t.Run("requires permission", func(t *testing.T) {
		svc := NewReferenceService(resource.Default(), new(repoMocks.MockReferenceRepository), new(cacheMocks.MockCache), nil)

		err := svc.Invalidate(ctxAs("VIEW.STUDENT.COHORTS"), "student-cohorts")

		var pe *PermissionError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, auth.PermManageCache, pe.Permission)
	})

	t.Run("cache failure", func(t *testing.T) {
		mCache := new(cacheMocks.MockCache)
		mCache.On("Delete", mock.Anything, mock.Anything).Return(errors.New("redis down"))
		svc := NewReferenceService(resource.Default(), new(repoMocks.MockReferenceRepository), mCache, nil)

		err := svc.Invalidate(ctxAs(auth.Wildcard), "academic-levels")

		var ie *IntegrationError
		assert.ErrorAs(t, err, &ie)
	})

	t.Run("no cache configured", func(t *testing.T) {
		svc := NewReferenceService(resource.Default(), new(repoMocks.MockReferenceRepository), nil, nil)

		assert.NoError(t, svc.Invalidate(ctxAs(auth.Wildcard), "academic-levels"))
	})
}

func TestReferenceService_ListCachedMatchesRepository(t *testing.T) {
	ctx := ctxAs(auth.Wildcard)

	// Ordered by code, as the repository returns them.
	items := []model.ReferenceItem{
		{ID: "g1", Code: "ATH", Title: "Athletes", Attributes: map[string]any{"cohortType": "athletic", "active": true, "credits": 12}},
		{ID: "g2", Code: "HON", Title: "Honors", Attributes: map[string]any{"cohortType": "academic", "active": false, "credits": 12.5}},
		{ID: "g4", Code: "INT", Title: "International", Attributes: map[string]any{"cohortType": "athletic", "tags": []any{"x"}}},
		{ID: "g3", Code: "VET", Title: "Veterans", Attributes: map[string]any{"cohortType": "federal", "active": true, "parent": nil}},
	}
	byCode := func(codes []string) []model.ReferenceItem {
		out := make([]model.ReferenceItem, 0, len(codes))
		for _, code := range codes {
			for _, item := range items {
				if item.Code == code {
					out = append(out, item)
				}
			}
		}
		return out
	}

	tests := []struct {
		name      string
		query     ListQuery
		wantCodes []string
		wantTotal int
	}{
		{name: "boolean attribute", query: ListQuery{Criteria: repository.Criteria{"active": "true"}}, wantCodes: []string{"ATH", "VET"}, wantTotal: 2},
		{name: "false attribute", query: ListQuery{Criteria: repository.Criteria{"active": "false"}}, wantCodes: []string{"HON"}, wantTotal: 1},
		{name: "integer attribute", query: ListQuery{Criteria: repository.Criteria{"credits": "12"}}, wantCodes: []string{"ATH"}, wantTotal: 1},
		{name: "decimal attribute", query: ListQuery{Criteria: repository.Criteria{"credits": "12.5"}}, wantCodes: []string{"HON"}, wantTotal: 1},
		{name: "null attribute", query: ListQuery{Criteria: repository.Criteria{"parent": "null"}}, wantCodes: []string{}, wantTotal: 0},
		{name: "array attribute", query: ListQuery{Criteria: repository.Criteria{"tags": `["x"]`}}, wantCodes: []string{}, wantTotal: 0},
		{name: "filtered second page", query: ListQuery{Criteria: repository.Criteria{"cohortType": "athletic"}, Offset: 1, Limit: 1}, wantCodes: []string{"INT"}, wantTotal: 2},
		{name: "unfiltered page", query: ListQuery{Offset: 2, Limit: 2}, wantCodes: []string{"INT", "VET"}, wantTotal: 4},
	}

	codesOf := func(res *ListResult) []string {
		codes := make([]string, 0, len(res.Items))
		for _, item := range res.Items {
			codes = append(codes, item.Code)
		}
		return codes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Without a cache the query is pushed down; the mock answers as Postgres would.
			pushRepo := new(repoMocks.MockReferenceRepository)
			pushRepo.On("List", mock.Anything, "student-cohorts", tt.query.Criteria, repository.PageQuery{Offset: tt.query.Offset, Limit: tt.query.Limit}).
				Return(&repository.PageResult[model.ReferenceItem]{Items: byCode(tt.wantCodes), Total: tt.wantTotal}, nil)
			pushed, err := NewReferenceService(resource.Default(), pushRepo, nil, zap.NewNop()).
				List(ctx, "student-cohorts", tt.query, false)
			require.NoError(t, err)

			mCache := new(cacheMocks.MockCache)
			mCache.On("Get", mock.Anything, "student-cohorts:all").Return(mustJSON(t, items), true, nil)
			fromCache, err := NewReferenceService(resource.Default(), new(repoMocks.MockReferenceRepository), mCache, zap.NewNop()).
				List(ctx, "student-cohorts", tt.query, false)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCodes, codesOf(pushed))
			assert.Equal(t, codesOf(pushed), codesOf(fromCache))
			assert.Equal(t, tt.wantTotal, fromCache.Total)
			assert.Equal(t, pushed.Total, fromCache.Total)
			pushRepo.AssertExpectations(t)
			mCache.AssertExpectations(t)
		})
	}
}

func TestReferenceService_PrivacyStripsFixedFields(t *testing.T) {
	ctx := ctxAs("VIEW.STUDENT.COHORTS")
	items := []model.ReferenceItem{
		{ID: "g1", Code: "ATH", Title: "Athletes", Description: "secret", Attributes: map[string]any{"sponsor": "NCAA"}},
	}

	tests := []struct {
		name           string
		props          []string
		withCache      bool
		wantRestricted bool
		wantJSON       string
	}{
		{
			name:           "description",
			props:          []string{"description"},
			wantRestricted: true,
			wantJSON:       `[{"id":"g1","code":"ATH","title":"Athletes","sponsor":"NCAA"}]`,
		},
		{
			name:           "code and attribute from cache",
			props:          []string{"code", "sponsor"},
			withCache:      true,
			wantRestricted: true,
			wantJSON:       `[{"id":"g1","title":"Athletes","description":"secret"}]`,
		},
		{
			name:           "id is never stripped",
			props:          []string{"id"},
			wantRestricted: false,
			wantJSON:       `[{"id":"g1","code":"ATH","title":"Athletes","description":"secret","sponsor":"NCAA"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockReferenceRepository)
			var svc ReferenceService
			if tt.withCache {
				mCache := new(cacheMocks.MockCache)
				mCache.On("Get", mock.Anything, "student-cohorts:all").Return(mustJSON(t, items), true, nil)
				mCache.On("Get", mock.Anything, "student-cohorts:privacy").Return(mustJSON(t, tt.props), true, nil)
				svc = NewReferenceService(resource.Default(), mRepo, mCache, zap.NewNop())
			} else {
				mRepo.On("List", mock.Anything, "student-cohorts", repository.Criteria(nil), repository.PageQuery{}).
					Return(&repository.PageResult[model.ReferenceItem]{Items: items, Total: 1}, nil)
				mRepo.On("PrivateProperties", mock.Anything, "student-cohorts").Return(tt.props, nil)
				svc = NewReferenceService(resource.Default(), mRepo, nil, zap.NewNop())
			}

			res, err := svc.List(ctx, "student-cohorts", ListQuery{}, false)

			require.NoError(t, err)
			assert.Equal(t, tt.wantRestricted, res.Restricted)
			assert.JSONEq(t, tt.wantJSON, string(mustJSON(t, res.Items)))
			assert.Equal(t, "secret", items[0].Description)
			mRepo.AssertExpectations(t)
		})
	}
}
