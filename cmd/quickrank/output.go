package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kelsos/quickrank/internal/models"
)

func printResult(w io.Writer, result *models.RankingResult) error {
	if result == nil {
		return fmt.Errorf("run completed without a ranking result")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RANK", "CANDIDATE", "NAME", "SCORE", "RECOMMENDATION")
	for _, c := range result.Candidates {
		t.Row(strconv.Itoa(c.Rank), c.CandidateID, c.Name, fmt.Sprintf("%.1f", c.Score), c.Recommendation)
	}

	_, err := fmt.Fprintf(w, "Job posting %s: %d candidates ranked\n%s\n",
		result.JobPostingID, result.TotalCandidates, t.String())
	return err
}

func printStatus(w io.Writer, status *models.TaskStatus) {
	switch status.Handle.Kind {
	case models.KindBatch:
		fmt.Fprintf(w, "%s: ready=%t completed=%d/%d failed=%d\n",
			status.Handle, status.Ready, status.Completed, status.Total, status.Failed)
		for i, item := range status.Results {
			if !item.Success {
				fmt.Fprintf(w, "  item %d failed: %s\n", i+1, item.Error)
			}
		}
	default:
		line := fmt.Sprintf("%s: ready=%t", status.Handle, status.Ready)
		if p := status.Progress; p != nil {
			line += fmt.Sprintf(" progress=%.0f%%", p.Percent)
			if p.Stage != "" {
				line += " stage=" + p.Stage
			}
			if p.Message != "" {
				line += " message=" + strconv.Quote(p.Message)
			}
		}
		if status.Error != "" {
			line += " error=" + strconv.Quote(status.Error)
		}
		fmt.Fprintln(w, line)
		if len(status.Result) > 0 {
			fmt.Fprintf(w, "  result: %s\n", status.Result)
		}
	}
}
