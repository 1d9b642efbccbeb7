package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"queuetrack-backend/internal/report"
	"queuetrack-backend/internal/store"
	"queuetrack-backend/internal/trend"
)

const dateLayout = "2006-01-02"

type seriesPoint struct {
	Date string `json:"date"`
	Pos  int    `json:"pos"`
}

type entryResponse struct {
	RoomID    int64         `json:"room_id"`
	ExtID     int64         `json:"ext_id"`
	Label     string        `json:"label"`
	Summary   string        `json:"summary"`
	Points    int           `json:"points"`
	Slope     float64       `json:"m"`
	Intercept float64       `json:"c"`
	ETA       *string       `json:"eta"`
	DriftOneDay  *int       `json:"deta_1d"`
	DriftOneWeek *int       `json:"deta_1w"`
	Series    []seriesPoint `json:"series"`
}

type reportResponse struct {
	UserID   int64           `json:"user_id"`
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	GoalDate string          `json:"goal_date"`
	AsOf     string          `json:"as_of"`
	MinDate  *string         `json:"min_date"`
	MaxDate  *string         `json:"max_date"`
	Entries  []entryResponse `json:"entries"`
	Errors   []string        `json:"errors,omitempty"`
}

// GetReport handles GET /api/users/:user_id/report. The projection is
// recomputed from the full history on every call; only the response-cache
// middleware TTL stands between a request and fresh numbers.
func (h *Handler) GetReport(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.UserByID(ctx, userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	rooms, err := h.store.RoomsForUser(ctx, userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve rooms"})
		return
	}

	histories := make(map[int64][]trend.Point, len(rooms))
	for _, room := range rooms {
		obs, err := h.store.History(ctx, room.ID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve history"})
			return
		}
		histories[room.ID] = report.HistoryPoints(obs)
	}

	rep, buildErr := report.Build(user, rooms, histories, store.DateOnly(time.Now()), h.projector)

	resp := reportResponse{
		UserID:   rep.UserID,
		Email:    rep.Email,
		Name:     rep.Name,
		GoalDate: rep.GoalDate.Format(dateLayout),
		AsOf:     rep.AsOf.Format(dateLayout),
		MinDate:  optionalDate(rep.MinDate),
		MaxDate:  optionalDate(rep.MaxDate),
		Entries:  make([]entryResponse, 0, len(rep.Entries)),
	}
	if buildErr != nil {
		// label failures exclude their room but the rest of the report stands
		h.log.Warn("report built with errors", zap.Int64("user_id", userID), zap.Error(buildErr))
		resp.Errors = []string{buildErr.Error()}
	}

	for _, e := range rep.Entries {
		er := entryResponse{
			RoomID:       e.RoomID,
			ExtID:        e.ExtID,
			Label:        e.Label,
			Summary:      e.Summary(),
			Points:       e.Projection.Points,
			Slope:        e.Projection.Slope,
			Intercept:    e.Projection.Intercept,
			DriftOneDay:  e.Projection.ETADrift1d,
			DriftOneWeek: e.Projection.ETADrift1w,
			Series:       make([]seriesPoint, 0, len(e.Series)),
		}
		if e.Projection.ETA != nil {
			s := e.Projection.ETA.Format(dateLayout)
			er.ETA = &s
		}
		for _, pt := range e.Series {
			er.Series = append(er.Series, seriesPoint{Date: pt.Date.Format(dateLayout), Pos: pt.Position})
		}
		resp.Entries = append(resp.Entries, er)
	}

	c.JSON(http.StatusOK, resp)
}

func optionalDate(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
