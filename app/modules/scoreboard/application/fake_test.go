package scoreboardservice

import (
	"context"
	"sync"

	scoreboarddb "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories"
	"github.com/uptrace/bun"
)

// ------------------------
// Fake Scoreboard Repo
// ------------------------

type FakeScoreboardRepo struct {
	mu    sync.Mutex
	trace []string

	AggregateStandingsFunc func(ctx context.Context, db bun.IDB, eventIDs []string) ([]scoreboarddb.StandingRow, error)
	ListRawScoresFunc      func(ctx context.Context, db bun.IDB, eventIDs []string) ([]scoreboarddb.RawScoreRow, error)
	CreateEventFunc        func(ctx context.Context, db bun.IDB, event *scoreboarddb.Event) error
	CreateTeamFunc         func(ctx context.Context, db bun.IDB, team *scoreboarddb.Team) error
	InsertScoresFunc       func(ctx context.Context, db bun.IDB, scores []*scoreboarddb.Score) error
	UpdateScorePointsFunc  func(ctx context.Context, db bun.IDB, scoreID int64, points int) error
}

func NewFakeScoreboardRepo() *FakeScoreboardRepo {
	return &FakeScoreboardRepo{
		trace: []string{},
	}
}

func (f *FakeScoreboardRepo) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, step)
}

// --- Repository Interface Implementation ---

func (f *FakeScoreboardRepo) AggregateStandings(ctx context.Context, db bun.IDB, eventIDs []string) ([]scoreboarddb.StandingRow, error) {
	f.record("AggregateStandings")
	if f.AggregateStandingsFunc != nil {
		return f.AggregateStandingsFunc(ctx, db, eventIDs)
	}
	return nil, nil
}

func (f *FakeScoreboardRepo) ListRawScores(ctx context.Context, db bun.IDB, eventIDs []string) ([]scoreboarddb.RawScoreRow, error) {
	f.record("ListRawScores")
	if f.ListRawScoresFunc != nil {
		return f.ListRawScoresFunc(ctx, db, eventIDs)
	}
	return nil, nil
}

func (f *FakeScoreboardRepo) CreateEvent(ctx context.Context, db bun.IDB, event *scoreboarddb.Event) error {
	f.record("CreateEvent")
	if f.CreateEventFunc != nil {
		return f.CreateEventFunc(ctx, db, event)
	}
	return nil
}

func (f *FakeScoreboardRepo) CreateTeam(ctx context.Context, db bun.IDB, team *scoreboarddb.Team) error {
	f.record("CreateTeam")
	if f.CreateTeamFunc != nil {
		return f.CreateTeamFunc(ctx, db, team)
	}
	return nil
}

func (f *FakeScoreboardRepo) InsertScores(ctx context.Context, db bun.IDB, scores []*scoreboarddb.Score) error {
	f.record("InsertScores")
	if f.InsertScoresFunc != nil {
		return f.InsertScoresFunc(ctx, db, scores)
	}
	return nil
}

func (f *FakeScoreboardRepo) UpdateScorePoints(ctx context.Context, db bun.IDB, scoreID int64, points int) error {
	f.record("UpdateScorePoints")
	if f.UpdateScorePointsFunc != nil {
		return f.UpdateScorePointsFunc(ctx, db, scoreID, points)
	}
	return nil
}

// --- Accessors for assertions ---

func (f *FakeScoreboardRepo) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

// Ensure the fake actually satisfies the interface
var _ scoreboarddb.Repository = (*FakeScoreboardRepo)(nil)

// ------------------------
// In-memory score data
// ------------------------

type memTeam struct {
	id, name string
	scores   []scoreboarddb.RawScoreRow
}

// memScores backs a FakeScoreboardRepo with in-memory events so tests can
// mutate scores between computations.
type memScores struct {
	mu     sync.Mutex
	events map[string][]*memTeam
}

func newMemScores() *memScores {
	return &memScores{events: map[string][]*memTeam{}}
}

func (m *memScores) addEvent(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		m.events[eventID] = []*memTeam{}
	}
}

func (m *memScores) addTeam(eventID, teamID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventID] = append(m.events[eventID], &memTeam{id: teamID, name: name})
}

func (m *memScores) addScore(eventID, teamID string, points int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.events[eventID] {
		if t.id == teamID {
			t.scores = append(t.scores, scoreboarddb.RawScoreRow{EventID: eventID, TeamID: teamID, Points: points})
		}
	}
}

func (m *memScores) bind(repo *FakeScoreboardRepo) {
	repo.AggregateStandingsFunc = func(_ context.Context, _ bun.IDB, eventIDs []string) ([]scoreboarddb.StandingRow, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		var rows []scoreboarddb.StandingRow
		for _, eventID := range eventIDs {
			teams, ok := m.events[eventID]
			if !ok {
				continue
			}
			if len(teams) == 0 {
				rows = append(rows, scoreboarddb.StandingRow{EventID: eventID})
				continue
			}
			for _, t := range teams {
				id, name := t.id, t.name
				total := 0
				for _, s := range t.scores {
					total += s.Points
				}
				rows = append(rows, scoreboarddb.StandingRow{
					EventID: eventID, TeamID: &id, TeamName: &name,
					TotalScore: total, ScoreCount: len(t.scores),
				})
			}
		}
		return rows, nil
	}
	repo.ListRawScoresFunc = func(_ context.Context, _ bun.IDB, eventIDs []string) ([]scoreboarddb.RawScoreRow, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		var rows []scoreboarddb.RawScoreRow
		for _, eventID := range eventIDs {
			for _, t := range m.events[eventID] {
				rows = append(rows, t.scores...)
			}
		}
		return rows, nil
	}
}
