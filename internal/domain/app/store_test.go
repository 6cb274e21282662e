package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
)

func testStore() *Store {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	return NewStore(nil).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
}

func TestCreateAndGetApp(t *testing.T) {
	s := testStore()
	created, err := s.CreateApp("demo", CreateOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got := s.GetApp(created.ID)
	require.NotNil(t, got)
	assert.Equal(t, created, *got)

	assert.Nil(t, s.GetApp("missing"))
}

func TestCreateAppRejectsInvalidDom(t *testing.T) {
	s := testStore()
	_, err := s.CreateApp("broken", CreateOptions{Dom: &appdom.Dom{Root: "x"}})
	assert.Error(t, err)
	assert.Empty(t, s.GetApps())
}

func TestGetAppsOrder(t *testing.T) {
	s := testStore()
	a, _ := s.CreateApp("a", CreateOptions{})
	b, _ := s.CreateApp("b", CreateOptions{})

	apps := s.GetApps()
	require.Len(t, apps, 2)
	assert.Equal(t, b.ID, apps[0].ID)

	name := "a2"
	_, err := s.UpdateApp(a.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	apps = s.GetApps()
	assert.Equal(t, a.ID, apps[0].ID)
	assert.Equal(t, "a2", apps[0].Name)
}

func TestUnknownApp(t *testing.T) {
	s := testStore()

	_, err := s.UpdateApp("nope", UpdateInput{})
	assert.ErrorIs(t, err, ErrAppNotFound)
	assert.ErrorIs(t, s.DeleteApp("nope"), ErrAppNotFound)
	_, err = s.LoadDom("nope", Preview)
	assert.ErrorIs(t, err, ErrAppNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "NOT_FOUND", nf.Code())
	assert.Equal(t, `app "nope" not found`, nf.Error())
}

func TestDomIsCopied(t *testing.T) {
	s := testStore()
	a, _ := s.CreateApp("demo", CreateOptions{})

	dom, err := s.LoadDom(a.ID, Preview)
	require.NoError(t, err)
	dom.Nodes[dom.Root].Name = "mutated"

	again, err := s.LoadDom(a.ID, Preview)
	require.NoError(t, err)
	assert.Equal(t, "demo", again.Nodes[again.Root].Name)
}

func TestSaveDom(t *testing.T) {
	s := testStore()
	a, _ := s.CreateApp("demo", CreateOptions{})

	dom := appdom.New("renamed")
	require.NoError(t, s.SaveDom(a.ID, dom))
	got, _ := s.LoadDom(a.ID, Preview)
	assert.Equal(t, "renamed", got.Nodes[got.Root].Name)

	assert.Error(t, s.SaveDom(a.ID, &appdom.Dom{}))
}

func TestReleases(t *testing.T) {
	s := testStore()
	a, _ := s.CreateApp("demo", CreateOptions{})

	last, err := s.FindLastRelease(a.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	r1, err := s.CreateRelease(a.ID, ReleaseInput{Description: "one"})
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Version)

	require.NoError(t, s.SaveDom(a.ID, appdom.New("v2")))
	r2, err := s.CreateRelease(a.ID, ReleaseInput{Description: "two"})
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Version)

	releases, err := s.GetReleases(a.ID)
	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.Equal(t, 2, releases[0].Version)

	got, err := s.GetRelease(a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Description)

	_, err = s.GetRelease(a.ID, 9)
	assert.ErrorIs(t, err, ErrReleaseNotFound)

	v1, err := s.LoadDom(a.ID, Version{Number: 1})
	require.NoError(t, err)
	assert.Equal(t, "demo", v1.Nodes[v1.Root].Name)

	last, err = s.FindLastRelease(a.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Version)
}

func TestDeployments(t *testing.T) {
	s := testStore()
	a, _ := s.CreateApp("a", CreateOptions{})
	b, _ := s.CreateApp("b", CreateOptions{})

	_, err := s.CreateDeployment(a.ID, 1)
	assert.ErrorIs(t, err, ErrReleaseNotFound)

	dep, err := s.Deploy(a.ID, ReleaseInput{Description: "first"})
	require.NoError(t, err)
	assert.Equal(t, 1, dep.Version)

	_, err = s.CreateRelease(a.ID, ReleaseInput{})
	require.NoError(t, err)
	second, err := s.CreateDeployment(a.ID, 2)
	require.NoError(t, err)

	active, err := s.FindActiveDeployment(a.ID)
	require.NoError(t, err)
	assert.Equal(t, second, *active)

	none, err := s.FindActiveDeployment(b.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	deps, err := s.GetDeployments(a.ID)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, second.ID, deps[0].ID)

	assert.Equal(t, []Deployment{second}, s.GetActiveDeployments())
}

func TestDuplicateAndDelete(t *testing.T) {
	s := testStore()
	a, _ := s.CreateApp("demo", CreateOptions{})
	_, err := s.Deploy(a.ID, ReleaseInput{})
	require.NoError(t, err)

	dup, err := s.DuplicateApp(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo (copy)", dup.Name)
	assert.NotEqual(t, a.ID, dup.ID)

	releases, err := s.GetReleases(dup.ID)
	require.NoError(t, err)
	assert.Empty(t, releases)

	require.NoError(t, s.DeleteApp(a.ID))
	assert.Nil(t, s.GetApp(a.ID))
	assert.Empty(t, s.GetActiveDeployments())
	assert.Equal(t, 1, s.Stats()["apps"])
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"", Preview, false},
		{"preview", Preview, false},
		{"3", Version{Number: 3}, false},
		{"0", Version{}, true},
		{"latest", Version{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var v Version
	assert.True(t, v.IsPreview(), "zero value selects the editable DOM")
	require.NoError(t, v.UnmarshalJSON([]byte(`3`)))
	require.NoError(t, v.UnmarshalJSON([]byte(`"preview"`)))
	assert.True(t, v.IsPreview())
	require.NoError(t, v.UnmarshalJSON([]byte(`2`)))
	assert.Equal(t, Version{Number: 2}, v)
	assert.Equal(t, "2", v.String())
}
