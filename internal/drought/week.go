package drought

import "time"

// PreviousWeekDate returns the YYYYMMDD date of the drought map preceding the
// current one. Maps are dated Tuesdays and published Thursday at 08:30
// Eastern; before that cutoff the current map is still the one dated the
// Tuesday before last.
func PreviousWeekDate(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	back := (int(local.Weekday()) - int(time.Tuesday) + 7) % 7
	tuesday := time.Date(local.Year(), local.Month(), local.Day()-back, 0, 0, 0, 0, loc)

	cutoff := time.Date(tuesday.Year(), tuesday.Month(), tuesday.Day()+2, 8, 30, 0, 0, loc)
	if local.Before(cutoff) {
		tuesday = tuesday.AddDate(0, 0, -7)
	}
	return tuesday.Format("20060102")
}
