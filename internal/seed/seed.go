package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	questiondomain "github.com/smallbiznis/nexus360/internal/question/domain"
	questionrepository "github.com/smallbiznis/nexus360/internal/question/repository"
	"gorm.io/gorm"
)

type defaultQuestion struct {
	Category string
	Text     string
}

var sharedQuestionnaire = []defaultQuestion{
	{"Integrity", "Treats team members fairly"},
	{"Integrity", "Upholds principles under significant pressure or temptation"},
	{"Learning & Innovation", "Actively seeks feedback on own performance from others"},
	{"Learning & Innovation", "Learns from benchmarks and tries new approaches"},
	{"Strategic Thinking", "Communicates company strategic goals clearly"},
	{"Organizational Optimization", "Proposes improvements to organizational processes"},
	{"Talent Development", "Identifies strengths and gaps in others"},
}

// EnsureSharedQuestionnaire inserts the shared default questions when no
// shared question exists yet. It returns the number of inserted rows.
func EnsureSharedQuestionnaire(db *gorm.DB) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return 0, err
	}

	repo := questionrepository.Provide()
	ctx := context.Background()
	inserted := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := repo.CountShared(ctx, tx)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		questions := make([]*questiondomain.Question, 0, len(sharedQuestionnaire))
		for i, q := range sharedQuestionnaire {
			questions = append(questions, &questiondomain.Question{
				ID:        node.Generate(),
				Category:  q.Category,
				Text:      q.Text,
				Position:  i + 1,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err := repo.Insert(ctx, tx, questions...); err != nil {
			return err
		}
		inserted = len(questions)
		return nil
	})
	return inserted, err
}
