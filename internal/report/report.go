// Package report assembles per-room projections into the ordered user-level
// report consumed by the rendering collaborators.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"queuetrack-backend/internal/model"
	"queuetrack-backend/internal/trend"
)

// farFuture is the sort sentinel for rooms without a defined ETA; they come
// after every room whose trend actually crosses zero.
var farFuture = time.Date(2199, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry is one room's line in the report.
type Entry struct {
	RoomID     int64
	ExtID      int64
	Label      string
	Projection trend.Projection
	Series     []trend.Point
}

// Summary renders the legend line for an entry: label, ETA (or blank) and
// the 1d/7d drift columns.
func (e Entry) Summary() string {
	eta := "          "
	if e.Projection.ETA != nil {
		eta = e.Projection.ETA.Format("02.01.2006")
	}
	return e.Label + " | " + eta +
		FormatDelta(e.Projection.ETADrift1d, "d") +
		FormatDelta(e.Projection.ETADrift1w, "w")
}

// Report is the per-user projection report.
type Report struct {
	UserID   int64
	Email    string
	Name     string
	GoalDate time.Time
	AsOf     time.Time
	Entries  []Entry
	MinDate  time.Time
	MaxDate  time.Time
}

// Build projects every room's history as of the given date and orders the
// entries soonest ETA first, undefined ETAs last. A room whose label cannot
// be derived is left out of the report; its error is joined into the
// returned error while the remaining rooms still produce a usable report.
func Build(user model.User, rooms []model.Room, histories map[int64][]trend.Point, asOf time.Time, projector trend.Projector) (Report, error) {
	rep := Report{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.FirstName + " " + user.LastName,
		GoalDate: user.GoalDate,
		AsOf:     asOf,
	}

	var labelErrs []error
	for _, room := range rooms {
		label, err := AbbrevRoom(room.TypeCode, room.Description)
		if err != nil {
			labelErrs = append(labelErrs, fmt.Errorf("room %d (%s): %w", room.ID, room.Description, err))
			continue
		}
		series := histories[room.ID]
		rep.Entries = append(rep.Entries, Entry{
			RoomID:     room.ID,
			ExtID:      room.ExtID,
			Label:      label,
			Projection: projector.Project(series, asOf),
			Series:     series,
		})

		for _, pt := range series {
			if rep.MinDate.IsZero() || pt.Date.Before(rep.MinDate) {
				rep.MinDate = pt.Date
			}
			if pt.Date.After(rep.MaxDate) {
				rep.MaxDate = pt.Date
			}
		}
	}

	sort.SliceStable(rep.Entries, func(i, j int) bool {
		return sortETA(rep.Entries[i]).Before(sortETA(rep.Entries[j]))
	})

	return rep, errors.Join(labelErrs...)
}

func sortETA(e Entry) time.Time {
	if e.Projection.ETA != nil {
		return *e.Projection.ETA
	}
	return farFuture
}

// HistoryPoints converts stored observations into projector input.
func HistoryPoints(obs []model.Observation) []trend.Point {
	pts := make([]trend.Point, len(obs))
	for i, o := range obs {
		y, m, d := o.Date.Date()
		pts[i] = trend.Point{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Position: o.Position}
	}
	return pts
}
