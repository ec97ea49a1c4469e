package service

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	usernameIllegal = regexp.MustCompile(`[^a-z0-9_]`)
)

const fallbackUsername = "user"

// DeriveUsername turns a display name into a username base.
func DeriveUsername(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = whitespaceRun.ReplaceAllString(base, "_")
	base = usernameIllegal.ReplaceAllString(base, "")
	if base == "" {
		return fallbackUsername
	}
	return base
}

// usernameAllocator hands out usernames that do not collide with any key it
// has seen, appending 1, 2, ... to the base.
type usernameAllocator struct {
	taken map[string]struct{}
}

func newUsernameAllocator(existing []string) *usernameAllocator {
	taken := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		taken[strings.ToLower(key)] = struct{}{}
	}
	return &usernameAllocator{taken: taken}
}

func (a *usernameAllocator) allocate(base string) string {
	candidate := base
	for i := 1; ; i++ {
		if _, ok := a.taken[candidate]; !ok {
			break
		}
		candidate = base + strconv.Itoa(i)
	}
	a.taken[candidate] = struct{}{}
	return candidate
}
