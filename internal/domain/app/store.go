package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
	"github.com/GriffinCanCode/toolpad/internal/shared/id"
)

type appRecord struct {
	app         App
	dom         *appdom.Dom
	releases    []*Release // ascending by version
	deployments []*Deployment
}

// Store keeps apps, their DOMs, releases and deployments in memory. It is
// safe for concurrent use; every value handed out is a copy.
type Store struct {
	mu     sync.RWMutex
	apps   map[string]*appRecord // Protected by mu
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		apps:   make(map[string]*appRecord),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces time.Now for record timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// CreateApp adds an app. Without a DOM in opts it starts from an empty one.
func (s *Store) CreateApp(name string, opts CreateOptions) (App, error) {
	dom := opts.Dom
	if dom == nil {
		dom = appdom.New(name)
	} else if err := dom.Validate(); err != nil {
		return App{}, err
	}
	dom, err := dom.Clone()
	if err != nil {
		return App{}, err
	}

	now := s.now()
	rec := &appRecord{
		app: App{ID: uuid.New().String(), Name: name, CreatedAt: now, EditedAt: now},
		dom: dom,
	}

	s.mu.Lock()
	s.apps[rec.app.ID] = rec
	s.mu.Unlock()

	s.logger.Info("App created", zap.String("app_id", rec.app.ID), zap.String("name", name))
	return rec.app, nil
}

// GetApps lists apps, most recently edited first.
func (s *Store) GetApps() []App {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := make([]App, 0, len(s.apps))
	for _, rec := range s.apps {
		apps = append(apps, rec.app)
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].EditedAt.Equal(apps[j].EditedAt) {
			return apps[i].ID < apps[j].ID
		}
		return apps[i].EditedAt.After(apps[j].EditedAt)
	})
	return apps
}

// GetApp returns nil when the app does not exist.
func (s *Store) GetApp(appID string) *App {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.apps[appID]
	if !ok {
		return nil
	}
	app := rec.app
	return &app
}

// UpdateApp applies the non-nil fields of in.
func (s *Store) UpdateApp(appID string, in UpdateInput) (App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(appID)
	if err != nil {
		return App{}, err
	}
	if in.Name != nil {
		rec.app.Name = *in.Name
	}
	rec.app.EditedAt = s.now()
	return rec.app, nil
}

// DuplicateApp copies an app's editable DOM into a new app. Releases and
// deployments are not copied.
func (s *Store) DuplicateApp(appID string) (App, error) {
	s.mu.RLock()
	rec, err := s.record(appID)
	var (
		name string
		dom  *appdom.Dom
	)
	if err == nil {
		name = rec.app.Name + " (copy)"
		dom, err = rec.dom.Clone()
	}
	s.mu.RUnlock()
	if err != nil {
		return App{}, err
	}
	return s.CreateApp(name, CreateOptions{Dom: dom})
}

// DeleteApp removes an app with everything recorded for it.
func (s *Store) DeleteApp(appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.record(appID); err != nil {
		return err
	}
	delete(s.apps, appID)
	s.logger.Info("App deleted", zap.String("app_id", appID))
	return nil
}

// LoadDom returns a copy of the editable DOM or of a released snapshot.
func (s *Store) LoadDom(appID string, version Version) (*appdom.Dom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(appID)
	if err != nil {
		return nil, err
	}
	if version.IsPreview() {
		return rec.dom.Clone()
	}
	rel, err := rec.release(version.Number)
	if err != nil {
		return nil, err
	}
	return rel.Snapshot.Clone()
}

// SaveDom replaces the editable DOM.
func (s *Store) SaveDom(appID string, dom *appdom.Dom) error {
	if err := dom.Validate(); err != nil {
		return err
	}
	dom, err := dom.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(appID)
	if err != nil {
		return err
	}
	rec.dom = dom
	rec.app.EditedAt = s.now()
	return nil
}

// CreateRelease snapshots the editable DOM under the next version number.
func (s *Store) CreateRelease(appID string, in ReleaseInput) (Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(appID)
	if err != nil {
		return Release{}, err
	}
	return s.createRelease(rec, in)
}

func (s *Store) createRelease(rec *appRecord, in ReleaseInput) (Release, error) {
	snapshot, err := rec.dom.Clone()
	if err != nil {
		return Release{}, err
	}
	version := 1
	if n := len(rec.releases); n > 0 {
		version = rec.releases[n-1].Version + 1
	}
	rel := &Release{
		ID:          id.NewReleaseID().String(),
		AppID:       rec.app.ID,
		Version:     version,
		Description: in.Description,
		CreatedAt:   s.now(),
		Snapshot:    snapshot,
	}
	rec.releases = append(rec.releases, rel)
	s.logger.Info("Release created", zap.String("app_id", rec.app.ID), zap.Int("version", version))
	return *rel, nil
}

// GetReleases lists releases, newest first.
func (s *Store) GetReleases(appID string) ([]Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(appID)
	if err != nil {
		return nil, err
	}
	out := make([]Release, 0, len(rec.releases))
	for i := len(rec.releases) - 1; i >= 0; i-- {
		out = append(out, *rec.releases[i])
	}
	return out, nil
}

// GetRelease returns one release by version number.
func (s *Store) GetRelease(appID string, version int) (Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(appID)
	if err != nil {
		return Release{}, err
	}
	rel, err := rec.release(version)
	if err != nil {
		return Release{}, err
	}
	return *rel, nil
}

// FindLastRelease returns nil when the app has never been released.
func (s *Store) FindLastRelease(appID string) (*Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(appID)
	if err != nil {
		return nil, err
	}
	if len(rec.releases) == 0 {
		return nil, nil
	}
	rel := *rec.releases[len(rec.releases)-1]
	return &rel, nil
}

// CreateDeployment makes an existing release live.
func (s *Store) CreateDeployment(appID string, version int) (Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(appID)
	if err != nil {
		return Deployment{}, err
	}
	if _, err := rec.release(version); err != nil {
		return Deployment{}, err
	}
	return s.createDeployment(rec, version), nil
}

func (s *Store) createDeployment(rec *appRecord, version int) Deployment {
	dep := &Deployment{
		ID:        id.NewDeploymentID().String(),
		AppID:     rec.app.ID,
		Version:   version,
		CreatedAt: s.now(),
	}
	rec.deployments = append(rec.deployments, dep)
	s.logger.Info("Deployment created", zap.String("app_id", rec.app.ID), zap.Int("version", version))
	return *dep
}

// Deploy releases the editable DOM and deploys that release in one step.
func (s *Store) Deploy(appID string, in ReleaseInput) (Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(appID)
	if err != nil {
		return Deployment{}, err
	}
	rel, err := s.createRelease(rec, in)
	if err != nil {
		return Deployment{}, err
	}
	return s.createDeployment(rec, rel.Version), nil
}

// GetDeployments lists an app's deployments, newest first.
func (s *Store) GetDeployments(appID string) ([]Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(appID)
	if err != nil {
		return nil, err
	}
	out := make([]Deployment, 0, len(rec.deployments))
	for i := len(rec.deployments) - 1; i >= 0; i-- {
		out = append(out, *rec.deployments[i])
	}
	return out, nil
}

// FindActiveDeployment returns the latest deployment, or nil.
func (s *Store) FindActiveDeployment(appID string) (*Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(appID)
	if err != nil {
		return nil, err
	}
	return rec.active(), nil
}

// GetActiveDeployments returns the live deployment of every deployed app.
func (s *Store) GetActiveDeployments() []Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Deployment
	for _, rec := range s.apps {
		if dep := rec.active(); dep != nil {
			out = append(out, *dep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}

// Stats returns store statistics
func (s *Store) Stats() map[string]interface{} {
	apps, releases, deployments := s.Counts()
	return map[string]interface{}{
		"apps":        apps,
		"releases":    releases,
		"deployments": deployments,
	}
}

// Counts returns the number of apps and of releases and deployments across
// them.
func (s *Store) Counts() (apps, releases, deployments int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.apps {
		releases += len(rec.releases)
		deployments += len(rec.deployments)
	}
	return len(s.apps), releases, deployments
}

// record must be called with mu held.
func (s *Store) record(appID string) (*appRecord, error) {
	rec, ok := s.apps[appID]
	if !ok {
		return nil, &NotFoundError{What: "app", ID: appID}
	}
	return rec, nil
}

func (r *appRecord) release(version int) (*Release, error) {
	for _, rel := range r.releases {
		if rel.Version == version {
			return rel, nil
		}
	}
	return nil, &NotFoundError{What: "release", ID: fmt.Sprintf("%s@%d", r.app.ID, version)}
}

func (r *appRecord) active() *Deployment {
	if len(r.deployments) == 0 {
		return nil
	}
	dep := *r.deployments[len(r.deployments)-1]
	return &dep
}
