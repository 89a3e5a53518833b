package scoreboardservice

import (
	"context"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

const (
	standingsSheet = "Standings"
	rawScoresSheet = "Raw Scores"
)

// ScoreboardWorkbook renders the event's scoreboard as XLSX.
func (s *ScoreboardService) ScoreboardWorkbook(ctx context.Context, eventID string) ([]byte, error) {
	snap, err := s.GetScoreboard(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return BuildScoreboardWorkbook(snap)
}

// RankedTeam is a team with its competition rank; tied totals share a rank.
type RankedTeam struct {
	Rank int
	scoreboardtypes.TeamStanding
}

// RankTeams orders teams by total score, highest first, keeping scoreboard
// order between ties.
func RankTeams(teams []scoreboardtypes.TeamStanding) []RankedTeam {
	ranked := make([]RankedTeam, len(teams))
	for i, t := range teams {
		ranked[i] = RankedTeam{TeamStanding: t}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	for i := range ranked {
		if i > 0 && ranked[i].TotalScore == ranked[i-1].TotalScore {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}
	return ranked
}

// BuildScoreboardWorkbook writes a standings sheet and a raw score sheet.
func BuildScoreboardWorkbook(snap *scoreboardtypes.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), standingsSheet); err != nil {
		return nil, fmt.Errorf("failed to name standings sheet: %w", err)
	}
	if _, err := f.NewSheet(rawScoresSheet); err != nil {
		return nil, fmt.Errorf("failed to create raw scores sheet: %w", err)
	}

	standings := [][]any{{"Rank", "Team", "Total", "Scores"}}
	for _, t := range RankTeams(snap.Teams) {
		standings = append(standings, []any{t.Rank, t.Name, t.TotalScore, t.ScoreCount})
	}
	if err := writeRows(f, standingsSheet, standings); err != nil {
		return nil, err
	}

	raw := [][]any{{"Team", "Points", "Criteria", "Judge", "Question", "Method"}}
	for _, t := range snap.Teams {
		for _, r := range t.RawScores {
			raw = append(raw, []any{t.Name, r.Points, deref(r.CriteriaID), deref(r.JudgeID), deref(r.QuestionID), deref(r.Method)})
		}
	}
	if err := writeRows(f, rawScoresSheet, raw); err != nil {
		return nil, err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Scoreboard " + snap.EventID,
		Created: snap.ComputedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}); err != nil {
		return nil, fmt.Errorf("failed to set workbook properties: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
