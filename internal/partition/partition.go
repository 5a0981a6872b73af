package partition

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/bookdesk/internal/model"
)

// Views is the time-partitioned read model derived from a flat appointment
// snapshot. Cancelled appointments land in Cancelled regardless of their
// time; every other appointment is either upcoming (start >= ref) or past.
type Views struct {
	UpcomingByDate map[string][]model.Appointment
	Dates          []string
	Past           []model.Appointment
	Cancelled      []model.Appointment
}

// UserViews is the same split narrowed to one client email. History merges
// past and cancelled into a single reverse-chronological list.
type UserViews struct {
	Upcoming []model.Appointment
	History  []model.Appointment
}

// Split classifies appts against the reference time ref. It is pure: no
// clock reads, no mutation of the input slice.
//
// An appointment starting exactly at ref counts as upcoming.
func Split(appts []model.Appointment, ref time.Time) Views {
	v := Views{UpcomingByDate: map[string][]model.Appointment{}}

	for _, apt := range appts {
		switch {
		case apt.Cancelled():
			v.Cancelled = append(v.Cancelled, apt)
		case apt.AppointmentTime.Before(ref):
			v.Past = append(v.Past, apt)
		default:
			key := apt.DateKey()
			v.UpcomingByDate[key] = append(v.UpcomingByDate[key], apt)
		}
	}

	for key, bucket := range v.UpcomingByDate {
		sortAscending(bucket)
		v.Dates = append(v.Dates, key)
	}
	sort.Strings(v.Dates)
	sortDescending(v.Past)
	sortDescending(v.Cancelled)
	return v
}

// ForClient derives the signed-in client's own upcoming/history split.
func ForClient(appts []model.Appointment, ref time.Time, email string) UserViews {
	var uv UserViews
	for _, apt := range appts {
		if apt.ClientEmail != email {
			continue
		}
		if !apt.Cancelled() && !apt.AppointmentTime.Before(ref) {
			uv.Upcoming = append(uv.Upcoming, apt)
			continue
		}
		uv.History = append(uv.History, apt)
	}
	sortAscending(uv.Upcoming)
	sortDescending(uv.History)
	return uv
}

func sortAscending(appts []model.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].AppointmentTime.Before(appts[j].AppointmentTime)
	})
}

func sortDescending(appts []model.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[j].AppointmentTime.Before(appts[i].AppointmentTime)
	})
}
