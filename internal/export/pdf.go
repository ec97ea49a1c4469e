package export

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	reportdomain "github.com/smallbiznis/nexus360/internal/report/domain"
)

// ReportPDF renders a printable 360 report.
func ReportPDF(full reportdomain.FullReport, cycleName string) ([]byte, error) {
	report := full.Report

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "360 Review: "+report.SubjectName, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(12,
		col.New(6).Add(
			text.New("Cycle: "+cycleName, props.Text{Top: 0, Size: 9}),
			text.New(fmt.Sprintf("Reviews: %d", report.ReviewCount), props.Text{Top: 4, Size: 9}),
		),
		text.NewCol(6, fmt.Sprintf("Average %.1f / %d", report.AverageScore, reportdomain.FullMark), props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Category", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Others", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Self", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, c := range report.CategoryScores {
		m.AddRow(7,
			text.NewCol(6, c.Category, props.Text{Size: 9}),
			text.NewCol(3, fmt.Sprintf("%.1f", c.Score), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, fmt.Sprintf("%.1f", c.SelfScore), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		text.NewCol(12, "Summary", props.Text{Size: 12, Style: fontstyle.Bold, Top: 5}),
	)
	m.AddRow(30,
		text.NewCol(12, full.Summary.Summary, props.Text{Size: 9}),
	)
	addList(m, "Strengths", full.Summary.Strengths)
	addList(m, "Improvements", full.Summary.Improvements)

	if len(report.Feedback) > 0 {
		m.AddRow(12,
			text.NewCol(12, "Feedback", props.Text{Size: 12, Style: fontstyle.Bold, Top: 5}),
		)
		for _, f := range report.Feedback {
			var body strings.Builder
			if f.Strengths != "" {
				body.WriteString("+ " + f.Strengths)
			}
			if f.Improvements != "" {
				if body.Len() > 0 {
					body.WriteString("  ")
				}
				body.WriteString("- " + f.Improvements)
			}
			m.AddRow(10,
				text.NewCol(3, f.Relationship, props.Text{Size: 8, Style: fontstyle.Bold}),
				text.NewCol(9, body.String(), props.Text{Size: 8}),
			)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func addList(m core.Maroto, title string, items []string) {
	if len(items) == 0 {
		return
	}
	m.AddRow(8, text.NewCol(12, title, props.Text{Size: 10, Style: fontstyle.Bold}))
	for _, item := range items {
		m.AddRow(6, text.NewCol(12, "• "+item, props.Text{Size: 9, Left: 3}))
	}
}
