package businessday

import "time"

// WeekRange returns the ISO calendar week (Monday 00:00 to the next Monday)
// containing t, evaluated in loc. The close hour does not apply here.
func WeekRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(locationOrUTC(loc))
	offset := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, local.Location())
	return start, start.AddDate(0, 0, 7)
}

// MonthRange returns the calendar month containing t, evaluated in loc.
func MonthRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(locationOrUTC(loc))
	y, m, _ := local.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, local.Location())
	return start, start.AddDate(0, 1, 0)
}

// DayRange returns [from 00:00, to+1 00:00) for inclusive calendar dates.
func DayRange(from, to Key, loc *time.Location) (time.Time, time.Time, error) {
	start, err := from.Start(0, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := to.End(0, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
