package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/assignment/domain"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("nexus360/assignment")

type edge struct {
	reviewer snowflake.ID
	subject  snowflake.ID
	rel      domain.Relationship
}

// DeriveMatrix computes the review matrix for a set of users. The result
// depends only on the input: users are visited in id order and peer
// partners are chosen by current peer count, then id.
func DeriveMatrix(ctx context.Context, users []userdomain.User, minPeerReviewers int) []domain.Pair {
	_, span := tracer.Start(ctx, "assignment.derive_matrix")
	defer span.End()

	sorted := make([]userdomain.User, len(users))
	copy(sorted, users)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	present := make(map[snowflake.ID]struct{}, len(sorted))
	for _, u := range sorted {
		present[u.ID] = struct{}{}
	}

	pairs := make([]domain.Pair, 0, len(sorted)*(2+minPeerReviewers))
	seen := map[edge]struct{}{}
	add := func(reviewer, subject snowflake.ID, rel domain.Relationship) {
		key := edge{reviewer, subject, rel}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		pairs = append(pairs, domain.Pair{ReviewerID: reviewer, SubjectID: subject, Relationship: rel})
	}

	for _, u := range sorted {
		add(u.ID, u.ID, domain.RelationshipSelf)
	}

	linked := map[[2]snowflake.ID]struct{}{}
	for _, u := range sorted {
		if u.ManagerID == nil {
			continue
		}
		m := *u.ManagerID
		if m == u.ID {
			continue
		}
		if _, ok := present[m]; !ok {
			continue
		}
		add(m, u.ID, domain.RelationshipManager)
		add(u.ID, m, domain.RelationshipDirectReport)
		linked[unordered(m, u.ID)] = struct{}{}
	}

	departments := map[string][]snowflake.ID{}
	for _, u := range sorted {
		dept := strings.TrimSpace(u.Department)
		if dept == "" {
			continue
		}
		departments[dept] = append(departments[dept], u.ID)
	}
	names := make([]string, 0, len(departments))
	for name := range departments {
		names = append(names, name)
	}
	sort.Strings(names)

	peerCount := 0
	for _, name := range names {
		for _, p := range pairPeers(departments[name], linked, minPeerReviewers) {
			add(p[0], p[1], domain.RelationshipPeer)
			add(p[1], p[0], domain.RelationshipPeer)
			peerCount += 2
		}
	}

	span.SetAttributes(
		attribute.Int("users", len(sorted)),
		attribute.Int("departments", len(names)),
		attribute.Int("pairs", len(pairs)),
		attribute.Int("peer_pairs", peerCount),
	)
	return pairs
}

// pairPeers greedily links members of one department until each has
// minPeers partners or no eligible partner is left. Members are in id
// order. Manager/report links are never peers.
func pairPeers(members []snowflake.ID, linked map[[2]snowflake.ID]struct{}, minPeers int) [][2]snowflake.ID {
	if minPeers <= 0 || len(members) < 2 {
		return nil
	}
	count := make(map[snowflake.ID]int, len(members))
	paired := map[[2]snowflake.ID]struct{}{}
	var out [][2]snowflake.ID

	for _, u := range members {
		for count[u] < minPeers {
			var best snowflake.ID
			found := false
			for _, v := range members {
				if v == u {
					continue
				}
				key := unordered(u, v)
				if _, ok := linked[key]; ok {
					continue
				}
				if _, ok := paired[key]; ok {
					continue
				}
				if !found || count[v] < count[best] || (count[v] == count[best] && v < best) {
					best = v
					found = true
				}
			}
			if !found {
				break
			}
			paired[unordered(u, best)] = struct{}{}
			count[u]++
			count[best]++
			out = append(out, [2]snowflake.ID{u, best})
		}
	}
	return out
}

func unordered(a, b snowflake.ID) [2]snowflake.ID {
	if a < b {
		return [2]snowflake.ID{a, b}
	}
	return [2]snowflake.ID{b, a}
}
