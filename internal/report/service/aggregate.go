package service

import (
	"math"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	questiondomain "github.com/smallbiznis/nexus360/internal/question/domain"
	"github.com/smallbiznis/nexus360/internal/report/domain"
)

type tally struct {
	sum     int
	count   int
	self    int
	hasSelf bool
}

// aggregate folds submitted assignments into per-category scores. Scores
// for unknown questions and non-positive scores are ignored. Categories
// come out in questionnaire order.
func aggregate(questions []*questiondomain.Question, submitted []*assignmentdomain.Assignment) ([]domain.CategoryScore, int) {
	categoryOf := make(map[snowflake.ID]string, len(questions))
	order := make([]string, 0)
	known := map[string]struct{}{}
	for _, q := range questions {
		if q == nil {
			continue
		}
		categoryOf[q.ID] = q.Category
		if _, ok := known[q.Category]; !ok {
			known[q.Category] = struct{}{}
			order = append(order, q.Category)
		}
	}

	sorted := make([]*assignmentdomain.Assignment, 0, len(submitted))
	for _, a := range submitted {
		if a != nil && a.Status == assignmentdomain.StatusSubmitted {
			sorted = append(sorted, a)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	tallies := map[string]*tally{}
	reviews := 0
	for _, a := range sorted {
		isSelf := a.Relationship == assignmentdomain.RelationshipSelf
		if !isSelf {
			reviews++
		}

		scores := a.Scores.Data()
		ids := make([]snowflake.ID, 0, len(scores))
		for id := range scores {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			score := scores[id]
			if score <= 0 {
				continue
			}
			category, ok := categoryOf[id]
			if !ok {
				continue
			}
			t := tallies[category]
			if t == nil {
				t = &tally{}
				tallies[category] = t
			}
			if isSelf {
				t.self = score
				t.hasSelf = true
				continue
			}
			t.sum += score
			t.count++
		}
	}

	out := make([]domain.CategoryScore, 0, len(tallies))
	for _, category := range order {
		t, ok := tallies[category]
		if !ok {
			continue
		}
		entry := domain.CategoryScore{Category: category, FullMark: domain.FullMark}
		if t.count > 0 {
			entry.Score = round1(float64(t.sum) / float64(t.count))
		}
		if t.hasSelf {
			entry.SelfScore = float64(t.self)
		}
		out = append(out, entry)
	}
	return out, reviews
}

// averageScore is the mean of the non-zero category scores.
func averageScore(categories []domain.CategoryScore) float64 {
	var sum float64
	n := 0
	for _, c := range categories {
		if c.Score > 0 {
			sum += c.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round1(sum / float64(n))
}

func feedbackOf(submitted []*assignmentdomain.Assignment) []domain.Feedback {
	out := make([]domain.Feedback, 0)
	for _, a := range submitted {
		if a == nil || a.Status != assignmentdomain.StatusSubmitted {
			continue
		}
		strengths := strings.TrimSpace(a.FeedbackStrengths)
		improvements := strings.TrimSpace(a.FeedbackImprovements)
		if strengths == "" && improvements == "" {
			continue
		}
		out = append(out, domain.Feedback{
			Relationship: string(a.Relationship),
			Strengths:    strengths,
			Improvements: improvements,
		})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
