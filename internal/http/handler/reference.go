package handler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"refdata/internal/http/middleware"
	"refdata/internal/model"
	"refdata/internal/repository"
	"refdata/internal/resource"
	"refdata/internal/service"
	"refdata/internal/validator"
)

const (
	headerTotalCount        = "X-Total-Count"
	headerMediaType         = "X-Media-Type"
	headerContentRestricted = "X-Content-Restricted"

	notSupportedMessage = "The requested resource does not support create, update or delete"
)

// bypassCache reports whether any Cache-Control directive is no-cache.
func bypassCache(c *fiber.Ctx) bool {
	for _, d := range strings.Split(c.Get(fiber.HeaderCacheControl), ",") {
		if strings.EqualFold(strings.TrimSpace(d), "no-cache") {
			return true
		}
	}
	return false
}

// setEthosHeaders adds the context headers every successful read carries.
func setEthosHeaders(c *fiber.Ctx, def resource.Definition, restricted bool) {
	v, ok := middleware.NegotiatedVersion(c)
	if !ok {
		v = def.LatestVersion()
	}
	c.Set(headerMediaType, middleware.MediaTypeFor(v))
	if restricted {
		c.Set(headerContentRestricted, "partial")
	}
}

func parseNonNegative(c *fiber.Ctx, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if err := validator.Var(name, n, "gte=0"); err != nil {
		return 0, err
	}
	return n, nil
}

// parsePaging reads offset and limit. Unpaged resources always return everything.
func parsePaging(c *fiber.Ctx, def resource.Definition) (offset, limit int, err error) {
	if !def.Paged {
		return 0, 0, nil
	}
	if offset, err = parseNonNegative(c, "offset", 0); err != nil {
		return 0, 0, err
	}
	if limit, err = parseNonNegative(c, "limit", def.DefaultLimit); err != nil {
		return 0, 0, err
	}
	if limit == 0 {
		limit = def.DefaultLimit
	}
	if def.MaxLimit > 0 && limit > def.MaxLimit {
		limit = def.MaxLimit
	}
	return offset, limit, nil
}

// parseCriteria decodes the criteria query parameter, a JSON object of strings.
func parseCriteria(c *fiber.Ctx, def resource.Definition) (repository.Criteria, error) {
	raw := strings.TrimSpace(c.Query("criteria"))
	if raw == "" {
		return nil, nil
	}
	var crit repository.Criteria
	if err := json.Unmarshal([]byte(raw), &crit); err != nil {
		return nil, fmt.Errorf("criteria must be a JSON object of strings")
	}
	for _, k := range crit.Keys() {
		if !def.AllowsFilter(k) {
			return nil, fmt.Errorf("%s cannot be filtered by %s", def.Name, k)
		}
	}
	return crit, nil
}

// setPagingHeaders writes X-Total-Count and RFC 5988 Link relations.
func setPagingHeaders(c *fiber.Ctx, offset, limit, total int) {
	c.Set(headerTotalCount, strconv.Itoa(total))
	if limit <= 0 {
		return
	}

	base := c.BaseURL() + c.Path()
	link := func(off int, rel string) string {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(off))
		q.Set("limit", strconv.Itoa(limit))
		if crit := c.Query("criteria"); crit != "" {
			q.Set("criteria", crit)
		}
		return fmt.Sprintf(`<%s?%s>; rel="%s"`, base, q.Encode(), rel)
	}

	last := 0
	if total > 0 {
		last = ((total - 1) / limit) * limit
	}
	links := []string{link(0, "first")}
	if offset > 0 {
		links = append(links, link(max(offset-limit, 0), "prev"))
	}
	if offset+limit < total {
		links = append(links, link(offset+limit, "next"))
	}
	links = append(links, link(last, "last"))
	c.Set(fiber.HeaderLink, strings.Join(links, ", "))
}

// ListItems returns the items of one resource.
// @Summary List reference items
// @Description Cache-Control: no-cache bypasses the cache. Paged resources honor offset and limit.
// @Tags reference
// @Produce json
// @Param resource path string true "Resource name, e.g. student-cohorts"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Param criteria query string false "JSON object of exact-match filters"
// @Success 200 {array} map[string]any
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 406 {object} errorPayload
// @Router /{resource} [get]
func ListItems(def resource.Definition, svc service.ReferenceService, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit, err := parsePaging(c, def)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGING", "invalid offset or limit", err.Error())
		}
		crit, err := parseCriteria(c, def)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_CRITERIA", "invalid criteria", err.Error())
		}

		res, err := svc.List(c.UserContext(), def.Name, service.ListQuery{
			Criteria: crit,
			Offset:   offset,
			Limit:    limit,
		}, bypassCache(c))
		if err != nil {
			return writeServiceError(c, log, def.Name, err)
		}

		items := res.Items
		if items == nil {
			items = []model.ReferenceItem{}
		}

		setEthosHeaders(c, def, res.Restricted)
		if def.Paged {
			setPagingHeaders(c, offset, limit, res.Total)
		}
		return c.Status(fiber.StatusOK).JSON(items)
	}
}

// GetItem returns one item of a resource by guid.
// @Summary Get a reference item
// @Tags reference
// @Produce json
// @Param resource path string true "Resource name"
// @Param guid path string true "Item guid"
// @Success 200 {object} map[string]any
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /{resource}/{guid} [get]
func GetItem(def resource.Definition, svc service.ReferenceService, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		guid, err := url.PathUnescape(c.Params("guid"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_GUID", "invalid guid format")
		}
		guid = strings.TrimSpace(guid)
		if guid == "" {
			return writeError(c, fiber.StatusBadRequest, "GUID_REQUIRED", "A guid is required")
		}
		if err := validator.Var("guid", guid, "uuid"); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_GUID", "invalid guid format", err.Error())
		}

		res, err := svc.Get(c.UserContext(), def.Name, guid, bypassCache(c))
		if err != nil {
			return writeServiceError(c, log, def.Name, err)
		}

		setEthosHeaders(c, def, res.Restricted)
		return c.Status(fiber.StatusOK).JSON(res.Item)
	}
}

// NotSupported rejects create, update and delete on reference resources.
// @Summary Mutation is not supported
// @Tags reference
// @Produce json
// @Param resource path string true "Resource name"
// @Failure 405 {object} errorPayload
// @Router /{resource} [post]
// @Router /{resource}/{guid} [put]
// @Router /{resource}/{guid} [delete]
func NotSupported() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return writeError(c, fiber.StatusMethodNotAllowed, "NOT_SUPPORTED", notSupportedMessage)
	}
}
