package utils

import "time"

func UnixTimeToTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// EpochToTimePtr converts provider epoch seconds; zero means "unset" and yields nil.
func EpochToTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := UnixTimeToTime(ts)
	return &t
}
