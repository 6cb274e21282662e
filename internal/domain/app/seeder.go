package app

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
)

// seedFile is the document format of a seed file.
//
//	name: Sales dashboard
//	dom: {root: ..., nodes: {...}}
//	releases:
//	  - description: first cut
//	deploy: true
type seedFile struct {
	Name     string         `json:"name"`
	Dom      *appdom.Dom    `json:"dom"`
	Releases []ReleaseInput `json:"releases"`
	Deploy   bool           `json:"deploy"`
}

// Seeder loads apps from YAML files on disk
type Seeder struct {
	store  *Store
	dir    string
	logger *zap.Logger
}

// NewSeeder creates a seeder reading dir
func NewSeeder(store *Store, dir string, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, dir: dir, logger: logger}
}

// Seed loads every *.yaml / *.yml file below the seed directory. A missing
// directory is not an error; a file that fails to load is logged and
// skipped. Files are applied in path order.
func (s *Seeder) Seed() (loaded, failed int, err error) {
	if _, statErr := os.Stat(s.dir); os.IsNotExist(statErr) {
		s.logger.Warn("Seed directory not found", zap.String("dir", s.dir))
		return 0, 0, nil
	}

	paths, err := s.files()
	if err != nil {
		return 0, 0, err
	}

	for _, path := range paths {
		if err := s.load(path); err != nil {
			s.logger.Warn("Failed to seed app", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}
		loaded++
	}

	s.logger.Info("Seeding complete", zap.Int("loaded", loaded), zap.Int("failed", failed))
	return loaded, failed, nil
}

func (s *Seeder) files() ([]string, error) {
	var (
		mu    sync.Mutex
		paths []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Seeder) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := parseSeed(data)
	if err != nil {
		return err
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	app, err := s.store.CreateApp(f.Name, CreateOptions{Dom: f.Dom})
	if err != nil {
		return err
	}
	var last int
	for _, in := range f.Releases {
		rel, err := s.store.CreateRelease(app.ID, in)
		if err != nil {
			return err
		}
		last = rel.Version
	}
	if f.Deploy && last > 0 {
		if _, err := s.store.CreateDeployment(app.ID, last); err != nil {
			return err
		}
	}
	s.logger.Debug("Seeded app", zap.String("file", path), zap.String("app_id", app.ID))
	return nil
}

// parseSeed reads YAML into generic values and re-decodes them as JSON so
// the DOM types need only one set of tags.
func parseSeed(data []byte) (*seedFile, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	text, err := sonic.ConfigStd.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	var f seedFile
	if err := sonic.ConfigStd.Unmarshal(text, &f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &f, nil
}
