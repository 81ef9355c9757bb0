package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/showsweep/internal/cache"
	"github.com/amaumene/showsweep/internal/config"
	"github.com/amaumene/showsweep/internal/dispatch"
	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/identity"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/ratelimit"
	"github.com/amaumene/showsweep/internal/services/plex"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// plexFixture serves a two-show library and records every DELETE
type plexFixture struct {
	mux      *http.ServeMux
	deletes  []string
	showsXML string
}

func newPlexFixture() *plexFixture {
	f := &plexFixture{
		mux: http.NewServeMux(),
		showsXML: `<MediaContainer size="2">
			<Directory ratingKey="10" type="show" title="The Wire" year="2002" guid="com.plexapp.agents.thetvdb://79126?lang=en"/>
			<Directory ratingKey="11" type="show" title="Treme" year="2010" guid="com.plexapp.agents.thetvdb://135141?lang=en"/>
		</MediaContainer>`,
	}
	serve := func(pattern, body string) {
		f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				f.deletes = append(f.deletes, r.URL.Path)
				return
			}
			io.WriteString(w, body)
		})
	}

	serve("/library/sections", `<MediaContainer size="1"><Directory key="2" type="show" title="TV Shows"/></MediaContainer>`)
	serve("/status/sessions/history/all", `<MediaContainer size="0"></MediaContainer>`)
	f.mux.HandleFunc("/library/sections/2/all", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, f.showsXML)
	})
	serve("/library/metadata/10/children", `<MediaContainer size="1"><Directory ratingKey="20" type="season" index="1"/></MediaContainer>`)
	serve("/library/metadata/11/children", `<MediaContainer size="1"><Directory ratingKey="21" type="season" index="1"/></MediaContainer>`)
	serve("/library/metadata/20/children", `<MediaContainer size="1">
		<Video ratingKey="30" type="episode" index="1"><Media><Part file="/tv/The Wire/Season 01/e01.mkv" size="1000"/></Media></Video>
	</MediaContainer>`)
	serve("/library/metadata/21/children", `<MediaContainer size="1">
		<Video ratingKey="31" type="episode" index="1"><Media><Part file="/tv/Treme/Season 01/e01.mkv" size="2000"/></Media></Video>
	</MediaContainer>`)
	f.mux.HandleFunc("/library/metadata/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			f.deletes = append(f.deletes, r.URL.Path)
			return
		}
		http.NotFound(w, r)
	})
	return f
}

type sweepEnv struct {
	cfg   *config.Config
	db    *models.Database
	ctrl  *SweepController
	plex  *plexFixture
	store *cache.Store
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()
	fixture := newPlexFixture()
	server := httptest.NewServer(fixture.mux)
	t.Cleanup(server.Close)

	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		PlexURL:              server.URL,
		PlexToken:            "test-token",
		PlexLibrary:          "TV Shows",
		SkipOverseerr:        true,
		SkipTautulli:         true,
		CacheTTLHours:        24,
		RequestThresholdDays: 365,
		MaxRetries:           1,
		DefaultAction:        string(models.ActionDelete),
	}

	logger := testLogger()
	limiter := ratelimit.New(time.Second, logger)
	plexClient, err := plex.NewClient(cfg, limiter, logger)
	require.NoError(t, err)

	store := cache.NewStore(db, logger)
	mapper := identity.NewMapper(db, logger)
	eng := engine.New(store, mapper, nil, plexClient, nil, nil, logger)
	dispatcher := dispatch.New(db, plexClient, nil, nil, logger)
	syncCtrl := NewSyncController(db, plexClient, mapper, logger)

	return &sweepEnv{
		cfg:   cfg,
		db:    db,
		ctrl:  NewSweepController(cfg, syncCtrl, eng, dispatcher, nil, logger),
		plex:  fixture,
		store: store,
	}
}

func TestSweepDefaultIsSimulation(t *testing.T) {
	env := newSweepEnv(t)

	rep, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Total)
	assert.Len(t, rep.Acted, 2)
	assert.True(t, rep.DryRun)
	assert.Empty(t, env.plex.deletes, "simulation must never issue deletes")

	records, err := env.db.GetActionRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.True(t, record.Simulated)
		assert.Equal(t, models.ActionDelete, record.Action)
	}
}

func TestSweepApplyDeletes(t *testing.T) {
	env := newSweepEnv(t)
	env.cfg.Apply = true

	rep, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)

	assert.False(t, rep.DryRun)
	assert.ElementsMatch(t, []string{"/library/metadata/10", "/library/metadata/11"}, env.plex.deletes)
	assert.Equal(t, int64(3000), rep.ReclaimableBytes())
}

func TestSweepPartialProtection(t *testing.T) {
	env := newSweepEnv(t)
	env.cfg.IgnoreFirstSeason = true

	rep, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)

	// Both fixture shows have only season 1 downloaded
	assert.Empty(t, rep.Acted)
	assert.Len(t, rep.PartialProtection, 2)
}

func TestSyncLibraryTracksPresence(t *testing.T) {
	env := newSweepEnv(t)

	_, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)

	active, err := env.db.GetActiveShows()
	require.NoError(t, err)
	require.Len(t, active, 2)

	byTitle := make(map[string]*models.Show)
	for _, show := range active {
		byTitle[show.Title] = show
	}
	wire := byTitle["The Wire"]
	require.NotNil(t, wire)
	assert.Equal(t, "10", wire.PlexRatingKey)
	assert.Equal(t, "79126", wire.TVDBID, "TVDB id mined from the agent GUID")
	assert.Equal(t, "/tv/The Wire", wire.Path)
	assert.False(t, wire.LastSeenAt.IsZero())
}

func TestSyncResolvesStableCanonicalIDs(t *testing.T) {
	env := newSweepEnv(t)

	_, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)
	first, err := env.db.GetActiveShows()
	require.NoError(t, err)

	_, err = env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)
	second, err := env.db.GetActiveShows()
	require.NoError(t, err)

	ids := func(shows []*models.Show) map[string]string {
		m := make(map[string]string)
		for _, show := range shows {
			m[show.Title] = show.CanonicalID
		}
		return m
	}
	assert.Equal(t, ids(first), ids(second), "re-syncing must not mint new ids")
	assert.Len(t, second, 2)
}

func TestSweepReportsAmbiguousShows(t *testing.T) {
	env := newSweepEnv(t)

	// Two known shows share the title; a year-less library entry matches
	// both equally well
	require.NoError(t, env.db.PutMapping(&models.IdentityMapping{
		Source: models.SourcePlex, SourceID: "900", CanonicalID: "id-a",
		Title: "Shameless", Year: 2004,
	}))
	require.NoError(t, env.db.PutMapping(&models.IdentityMapping{
		Source: models.SourcePlex, SourceID: "901", CanonicalID: "id-b",
		Title: "Shameless", Year: 2011,
	}))

	env.plex.mux.HandleFunc("/library/metadata/12/children", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<MediaContainer size="1"><Directory ratingKey="22" type="season" index="1"/></MediaContainer>`)
	})
	env.plex.mux.HandleFunc("/library/metadata/22/children", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<MediaContainer size="1">
			<Video ratingKey="32" type="episode" index="1"><Media><Part file="/tv/Shameless/Season 01/e01.mkv" size="4000"/></Media></Video>
		</MediaContainer>`)
	})
	env.plex.showsXML = `<MediaContainer size="3">
		<Directory ratingKey="10" type="show" title="The Wire" year="2002" guid="com.plexapp.agents.thetvdb://79126?lang=en"/>
		<Directory ratingKey="11" type="show" title="Treme" year="2010" guid="com.plexapp.agents.thetvdb://135141?lang=en"/>
		<Directory ratingKey="12" type="show" title="Shameless"/>
	</MediaContainer>`

	rep, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Total, "ambiguous shows still count in the report")
	require.Len(t, rep.ExcludedAmbiguous, 1)
	assert.Equal(t, "Shameless", rep.ExcludedAmbiguous[0].Title)
	assert.Len(t, rep.Acted, 2)
	assert.Empty(t, env.plex.deletes)

	// The exclusion leaves an audit trail and never a library mutation
	records, err := env.db.GetActionRecords()
	require.NoError(t, err)
	require.Len(t, records, 3)
	byTitle := make(map[string]*models.ActionRecord)
	for _, record := range records {
		byTitle[record.Title] = record
	}
	require.NotNil(t, byTitle["Shameless"])
	assert.Equal(t, models.ActionKeep, byTitle["Shameless"].Action)

	// The unresolved entry is never upserted as a show
	active, err := env.db.GetActiveShows()
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSyncPreservesCreatedAt(t *testing.T) {
	env := newSweepEnv(t)

	_, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)
	first, err := env.db.GetActiveShows()
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, err = env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)
	second, err := env.db.GetActiveShows()
	require.NoError(t, err)

	createdAt := func(shows []*models.Show) map[string]time.Time {
		m := make(map[string]time.Time)
		for _, show := range shows {
			require.False(t, show.CreatedAt.IsZero())
			m[show.Title] = show.CreatedAt
		}
		return m
	}
	assert.Equal(t, createdAt(first), createdAt(second), "re-syncing must not reset creation timestamps")
}

func TestSyncMarksVanishedShowsInactive(t *testing.T) {
	env := newSweepEnv(t)

	_, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)

	// Treme disappears from the library before the next run
	env.plex.showsXML = `<MediaContainer size="1">
		<Directory ratingKey="10" type="show" title="The Wire" year="2002" guid="com.plexapp.agents.thetvdb://79126?lang=en"/>
	</MediaContainer>`

	rep, err := env.ctrl.Run(context.Background(), models.ModeNonInteractive)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)

	active, err := env.db.GetActiveShows()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "The Wire", active[0].Title)

	// The vanished show stays on record, just no longer active
	all, err := env.db.GetAllShows()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
