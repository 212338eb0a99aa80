package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"minewatch-server/internal/modules/sensors/sites"
	"minewatch-server/internal/modules/sensors/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	// maxBodyBytes caps a JSON reading submission.
	maxBodyBytes = 1 << 16
)

func parseLimitQuery(r *http.Request) (limit int, err error) {
	limit = defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'limit' must be > 0")
		}
		if n > maxLimit {
			return 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return limit, nil
}

// parseSiteQuery returns the optional 'site' parameter; a present but unknown
// site is an error.
func parseSiteQuery(r *http.Request) (string, error) {
	site := strings.TrimSpace(r.URL.Query().Get("site"))
	if site == "" {
		return "", nil
	}
	if _, ok := sites.Lookup(site); !ok {
		return "", errors.New("unknown 'site'")
	}
	return site, nil
}

// tail keeps the newest n of the sorted readings.
func tail(rs []types.Reading, n int) []types.Reading {
	if len(rs) > n {
		return rs[len(rs)-n:]
	}
	return rs
}
