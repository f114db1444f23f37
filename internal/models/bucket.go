package models

import "time"

type Bucket int

const (
	BucketToday Bucket = iota
	BucketYesterday
	BucketThisWeek
	BucketOlder
)

// DayBucket places t relative to now for display. Calendar days are compared
// in now's location.
func DayBucket(t, now time.Time) Bucket {
	t = t.In(now.Location())
	if sameDay(t, now) {
		return BucketToday
	}
	if sameDay(t, now.AddDate(0, 0, -1)) {
		return BucketYesterday
	}
	if now.Sub(t) < 7*24*time.Hour {
		return BucketThisWeek
	}
	return BucketOlder
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
