package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// likeEscaper neutralises LIKE wildcards so city filters match literally,
// as the in-memory store does.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '!'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// Search returns one page of flights matching q, ordered by departure,
// together with the total number of matches.  City filters are
// case-insensitive substring matches; DepartureDate selects one UTC day.
func (r *FlightRepo) Search(ctx context.Context, q model.FlightQuery) ([]model.Flight, int64, error) {
	where := []string{}
	args := []any{}

	if q.UpcomingOnly {
		where = append(where, "departure_time > ?")
		args = append(args, q.Now.UTC())
	}
	if q.DepartureCity != "" {
		where = append(where, "LOWER(departure_city) LIKE ? ESCAPE '!'")
		args = append(args, containsPattern(q.DepartureCity))
	}
	if q.ArrivalCity != "" {
		where = append(where, "LOWER(arrival_city) LIKE ? ESCAPE '!'")
		args = append(args, containsPattern(q.ArrivalCity))
	}
	if q.DepartureDate != "" {
		day, err := time.Parse(time.DateOnly, q.DepartureDate)
		if err == nil {
			where = append(where, "departure_time >= ? AND departure_time < ?")
			args = append(args, day, day.AddDate(0, 0, 1))
		}
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flights WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, classify(err, "count flights")
	}

	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize

	dataSQL := `SELECT ` + flightColumns + `
		FROM flights
		WHERE ` + cond + `
		ORDER BY departure_time ASC, id ASC
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, classify(err, "search flights")
	}
	defer rows.Close()

	out := make([]model.Flight, 0, limit)
	ids := make([]uint64, 0, limit)
	for rows.Next() {
		var f model.Flight
		if err := scanFlight(rows, &f); err != nil {
			return nil, 0, classify(err, "scan flight")
		}
		out = append(out, f)
		ids = append(ids, f.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "iterate flights")
	}

	classes, err := r.loadClasses(ctx, r.db, ids, "")
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Classes = classes[out[i].ID]
		if out[i].Classes == nil {
			out[i].Classes = map[model.SeatClass]model.ClassInventory{}
		}
	}
	return out, total, nil
}
