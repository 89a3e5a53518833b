package scoreboardservice

import (
	"time"

	scoreboarddb "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories"
	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

// buildSnapshots partitions aggregate and raw rows by event. Events with no
// aggregate row do not exist and are absent from the result.
func buildSnapshots(standings []scoreboarddb.StandingRow, raws []scoreboarddb.RawScoreRow, computedAt time.Time) map[string]*scoreboardtypes.Snapshot {
	rawByTeam := make(map[string][]scoreboardtypes.RawScore)
	for _, r := range raws {
		rawByTeam[r.TeamID] = append(rawByTeam[r.TeamID], scoreboardtypes.RawScore{
			Points:     r.Points,
			CriteriaID: r.CriteriaID,
			JudgeID:    r.JudgeID,
			QuestionID: r.QuestionID,
			Method:     r.Method,
		})
	}

	out := make(map[string]*scoreboardtypes.Snapshot)
	for _, row := range standings {
		snap, ok := out[row.EventID]
		if !ok {
			snap = &scoreboardtypes.Snapshot{
				EventID:    row.EventID,
				Teams:      []scoreboardtypes.TeamStanding{},
				ComputedAt: computedAt,
			}
			out[row.EventID] = snap
		}
		if row.TeamID == nil {
			continue
		}

		team := scoreboardtypes.TeamStanding{
			ID:         *row.TeamID,
			TotalScore: row.TotalScore,
			ScoreCount: row.ScoreCount,
			RawScores:  rawByTeam[*row.TeamID],
		}
		if row.TeamName != nil {
			team.Name = *row.TeamName
		}
		if team.RawScores == nil {
			team.RawScores = []scoreboardtypes.RawScore{}
		}
		snap.Teams = append(snap.Teams, team)
	}
	return out
}
