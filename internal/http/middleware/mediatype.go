package middleware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"refdata/internal/resource"
)

const (
	// MediaTypeLocalKey holds the negotiated major version (int) in Fiber's context locals.
	MediaTypeLocalKey = "media_version"

	vendorMediaType = "application/vnd.hedtech.integration+json"
)

var versionedMediaType = regexp.MustCompile(`^application/vnd\.hedtech\.integration\.v(\d+)(?:\.\d+)*\+json$`)

// MediaTypeFor renders the vendor media type of version v.
func MediaTypeFor(v int) string {
	return fmt.Sprintf("application/vnd.hedtech.integration.v%d+json", v)
}

// MediaType negotiates the representation version of def from the Accept header.
// Entries are tried in order; the first one def can serve wins. Generic types
// select the latest version. When nothing matches the request fails with 406.
func MediaType(def resource.Definition) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, ok := negotiate(def, c.Get(fiber.HeaderAccept))
		if !ok {
			return fiber.NewError(fiber.StatusNotAcceptable,
				fmt.Sprintf("%s does not support the requested media type", def.Name))
		}
		c.Locals(MediaTypeLocalKey, v)
		return c.Next()
	}
}

// NegotiatedVersion returns the version stored by MediaType.
func NegotiatedVersion(c *fiber.Ctx) (int, bool) {
	v, ok := c.Locals(MediaTypeLocalKey).(int)
	return v, ok
}

func negotiate(def resource.Definition, accept string) (int, bool) {
	if strings.TrimSpace(accept) == "" {
		return def.LatestVersion(), true
	}
	for _, entry := range strings.Split(accept, ",") {
		mt, _, _ := strings.Cut(entry, ";")
		mt = strings.ToLower(strings.TrimSpace(mt))
		switch mt {
		case "*/*", "application/*", fiber.MIMEApplicationJSON, vendorMediaType:
			return def.LatestVersion(), true
		}
		if m := versionedMediaType.FindStringSubmatch(mt); m != nil {
			v, err := strconv.Atoi(m[1])
			if err == nil && def.SupportsVersion(v) {
				return v, true
			}
		}
	}
	return 0, false
}
