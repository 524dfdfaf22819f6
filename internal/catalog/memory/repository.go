// Package memory is an in-process catalog.Repository for development and
// tests. All state is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tabletalk/tabletalk/internal/catalog"
)

type sessionState struct {
	session      catalog.Session
	files        []catalog.SessionFile
	nextPosition int
	charts       []catalog.DashboardChart
}

type Repository struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]*sessionState
}

var _ catalog.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{now: time.Now, sessions: map[string]*sessionState{}}
}

func (r *Repository) HealthCheck(context.Context) error {
	return nil
}

func (r *Repository) EnsureSession(_ context.Context, sessionID string) (catalog.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[sessionID]
	if !ok {
		state = &sessionState{session: catalog.Session{SessionID: sessionID, CreatedAt: r.now().UTC()}}
		r.sessions[sessionID] = state
	}
	return state.session, nil
}

func (r *Repository) GetSession(_ context.Context, sessionID string) (catalog.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[sessionID]
	if !ok {
		return catalog.Session{}, catalog.ErrNotFound
	}
	return state.session, nil
}

func (r *Repository) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(r.sessions, sessionID)
	return true, nil
}

func (r *Repository) RegisterFile(_ context.Context, in catalog.RegisterFileInput) (catalog.SessionFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[in.SessionID]
	if !ok {
		return catalog.SessionFile{}, catalog.ErrNotFound
	}
	for _, existing := range state.files {
		if existing.Filename == in.Filename || existing.TableName == in.TableName {
			return catalog.SessionFile{}, catalog.ErrAlreadyExists
		}
	}
	if in.MaxFiles > 0 && len(state.files) >= in.MaxFiles {
		return catalog.SessionFile{}, catalog.ErrLimitExceeded
	}
	state.nextPosition++
	file := catalog.SessionFile{
		SessionID:   in.SessionID,
		Filename:    in.Filename,
		TableName:   in.TableName,
		ObjectKey:   in.ObjectKey,
		Rows:        in.Rows,
		Columns:     in.Columns,
		ColumnNames: append([]string(nil), in.ColumnNames...),
		DTypes:      append([]string(nil), in.DTypes...),
		SampleJSON:  append([]byte(nil), in.SampleJSON...),
		SizeBytes:   in.SizeBytes,
		Position:    state.nextPosition,
		CreatedAt:   r.now().UTC(),
	}
	state.files = append(state.files, file)
	return file, nil
}

func (r *Repository) ListFiles(_ context.Context, sessionID string) ([]catalog.SessionFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.SessionFile, 0)
	if state, ok := r.sessions[sessionID]; ok {
		out = append(out, state.files...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *Repository) GetFile(_ context.Context, sessionID, filename string) (catalog.SessionFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.sessions[sessionID]; ok {
		for _, file := range state.files {
			if file.Filename == filename {
				return file, nil
			}
		}
	}
	return catalog.SessionFile{}, catalog.ErrNotFound
}

func (r *Repository) DeleteFile(_ context.Context, sessionID, filename string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[sessionID]
	if !ok {
		return false, nil
	}
	for i, file := range state.files {
		if file.Filename == filename {
			state.files = append(state.files[:i], state.files[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) CreateChart(_ context.Context, in catalog.CreateChartInput) (catalog.DashboardChart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[in.SessionID]
	if !ok {
		return catalog.DashboardChart{}, catalog.ErrNotFound
	}
	for _, existing := range state.charts {
		if existing.ChartID == in.ChartID {
			return catalog.DashboardChart{}, catalog.ErrAlreadyExists
		}
	}
	chart := catalog.DashboardChart{
		ChartID:   in.ChartID,
		SessionID: in.SessionID,
		Title:     in.Title,
		ChartJSON: append([]byte(nil), in.ChartJSON...),
		CreatedAt: r.now().UTC(),
	}
	state.charts = append(state.charts, chart)
	return chart, nil
}

func (r *Repository) ListCharts(_ context.Context, sessionID string) ([]catalog.DashboardChart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.DashboardChart, 0)
	if state, ok := r.sessions[sessionID]; ok {
		out = append(out, state.charts...)
	}
	return out, nil
}

func (r *Repository) DeleteChart(_ context.Context, sessionID, chartID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[sessionID]
	if !ok {
		return false, nil
	}
	for i, chart := range state.charts {
		if chart.ChartID == chartID {
			state.charts = append(state.charts[:i], state.charts[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
