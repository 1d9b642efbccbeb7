package internal_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"queuetrack-backend/config"
	"queuetrack-backend/internal/api"
	"queuetrack-backend/internal/db"
	"queuetrack-backend/internal/model"
	"queuetrack-backend/internal/scraper"
	"queuetrack-backend/internal/store"
	"queuetrack-backend/internal/trend"
)

// fakeSite simulates the accommodation site: a form login issuing a
// remember-me cookie and a dashboard listing the user's queues.
type fakeSite struct {
	mu    sync.Mutex
	rooms []store.ScrapedRoom
	srv   *httptest.Server
}

const siteToken = "remember-me-token"

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/login_check" method="post">
<input type="hidden" name="_csrf_token" value="csrf-abc">
<input name="_username"><input name="_password">
</form></body></html>`)
	})
	mux.HandleFunc("/login_check", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("_csrf_token") != "csrf-abc" ||
			r.PostFormValue("_username") != "ada@example.org" ||
			r.PostFormValue("_password") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:    "REMEMBERME",
			Value:   siteToken,
			Path:    "/",
			Expires: time.Now().Add(24 * time.Hour),
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("REMEMBERME")
		if err != nil || c.Value != siteToken {
			http.Error(w, "not logged in", http.StatusForbidden)
			return
		}
		site.mu.Lock()
		defer site.mu.Unlock()
		fmt.Fprint(w, `<html><body><div id="rooms"><table><tr><th>Typ</th></tr>`)
		for _, room := range site.rooms {
			fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td>`+
				`<td><a href="/wohnen/bewerbung/%d">anzeigen</a></td>`+
				`<td><a href="/wohnen/bewerbung/%d/edit">bearbeiten</a></td>`+
				`<td>01.02.2024</td><td>%d</td><td>%d</td>`+
				`<td><a href="/wohnen/bewerbung/delete/%d">löschen</a></td></tr>`,
				room.Type, room.Description, room.ExtID, room.ExtID,
				room.Capacity, room.Position, room.ExtID)
		}
		fmt.Fprint(w, `</table></div></body></html>`)
	})

	site.srv = httptest.NewServer(mux)
	t.Cleanup(site.srv.Close)
	return site
}

func (s *fakeSite) setRooms(rooms []store.ScrapedRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = rooms
}

func (s *fakeSite) scraperConfig(policy string) *config.Config {
	return &config.Config{
		Scraper: config.ScraperConfig{
			Enabled:      true,
			Interval:     time.Hour,
			LoginURL:     s.srv.URL + "/login",
			DashboardURL: s.srv.URL + "/dashboard",
			Concurrency:  2,
			UpdatePolicy: policy,
		},
	}
}

func newIntegrationStore(t *testing.T) store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "integration.db")), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return store.NewGormStore(gdb, zap.NewNop())
}

func TestScrapeLifecycle(t *testing.T) {
	site := newFakeSite(t)
	site.setRooms([]store.ScrapedRoom{
		{ExtID: 4321, Type: "Einzelzimmer", Description: "Turmstrasse 25-27", Capacity: 20, Position: 113},
		{ExtID: 8765, Type: "Wohngemeinschaft", Description: "Studentenwohnanlage (Theaterstr.)", Capacity: 8, Position: 42},
	})

	st := newIntegrationStore(t)
	user := model.User{Email: "ada@example.org", Password: "secret"}
	require.NoError(t, st.DB().Create(&user).Error)

	svc, err := scraper.NewService(site.scraperConfig("forbid"), st, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	svc.ScrapeOnce(ctx)

	rooms, err := st.RoomsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	today := store.DateOnly(time.Now())
	for _, room := range rooms {
		obs, err := st.History(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, today, store.DateOnly(obs[0].Date))
	}

	// the fresh remember-me token was written back before scraping went on
	saved, err := st.UserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, siteToken, saved.SessionToken)
	assert.True(t, saved.SessionValid(time.Now()))

	// a second cycle on the same day replays the session and is a no-op
	svc.ScrapeOnce(ctx)
	for _, room := range rooms {
		obs, err := st.History(ctx, room.ID)
		require.NoError(t, err)
		assert.Len(t, obs, 1)
	}
}

func TestScrapeConflictKeepsStoredRow(t *testing.T) {
	site := newFakeSite(t)
	site.setRooms([]store.ScrapedRoom{
		{ExtID: 4321, Type: "Einzelzimmer", Description: "Turmstrasse 25-27", Capacity: 20, Position: 113},
	})

	st := newIntegrationStore(t)
	require.NoError(t, st.DB().Create(&model.User{Email: "ada@example.org", Password: "secret"}).Error)

	svc, err := scraper.NewService(site.scraperConfig("forbid"), st, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	svc.ScrapeOnce(ctx)

	// upstream changes its mind within the day; the default policy keeps
	// the first value
	site.setRooms([]store.ScrapedRoom{
		{ExtID: 4321, Type: "Einzelzimmer", Description: "Turmstrasse 25-27", Capacity: 20, Position: 99},
	})
	svc.ScrapeOnce(ctx)

	rooms, err := st.RoomsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	obs, err := st.History(ctx, rooms[0].ID)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 113, obs[0].Position)

	// the allow policy overwrites the same row
	allowSvc, err := scraper.NewService(site.scraperConfig("allow"), st, nil, zap.NewNop())
	require.NoError(t, err)
	allowSvc.ScrapeOnce(ctx)

	obs, err = st.History(ctx, rooms[0].ID)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 99, obs[0].Position)
}

func TestReportEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	st := newIntegrationStore(t)
	ctx := context.Background()
	user := model.User{Email: "ada@example.org", FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, st.DB().Create(&user).Error)

	roomID, err := st.ResolveRoom(ctx, store.ScrapedRoom{
		ExtID: 4321, Type: "Einzelzimmer", Description: "Turmstrasse 25-27",
	}, user.ID)
	require.NoError(t, err)

	today := store.DateOnly(time.Now())
	for i := 0; i <= 10; i++ {
		_, err := st.UpsertObservation(ctx, roomID, today.AddDate(0, 0, i-10), 20, 100-5*i, store.UpdateForbidden)
		require.NoError(t, err)
	}

	router := api.NewRouter(&config.ServerConfig{
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
		CacheTTLSeconds: 1,
	}, st, trend.Projector{}, &webpush.Options{VAPIDPublicKey: "pub"}, zap.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/report", user.ID), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		UserID  int64  `json:"user_id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Entries []struct {
			RoomID  int64   `json:"room_id"`
			Label   string  `json:"label"`
			Summary string  `json:"summary"`
			Points  int     `json:"points"`
			ETA     *string `json:"eta"`
			Drift1d *int    `json:"deta_1d"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, user.ID, resp.UserID)
	assert.Equal(t, "Ada Lovelace", resp.Name)
	require.Len(t, resp.Entries, 1)
	entry := resp.Entries[0]
	assert.Equal(t, roomID, entry.RoomID)
	assert.Equal(t, "Turms 25-27 EZ", entry.Label)
	assert.Equal(t, 11, entry.Points)
	require.NotNil(t, entry.ETA)
	assert.Equal(t, today.AddDate(0, 0, 10).Format("2006-01-02"), *entry.ETA)
	require.NotNil(t, entry.Drift1d)
	assert.Equal(t, 0, *entry.Drift1d)

	// vapid key endpoint serves the configured public key
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vapid_public_key", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pub")
}
