package archiver

import "time"

// Rotation limits. A staging file is rotated once either the size or the
// age limit is crossed; MaxCollisionSuffix only bounds the choice of a
// rotation target path.
const (
	// MaxStagingSize is the maximum number of bytes a staging file may hold
	// before the next write forces a rotation.
	MaxStagingSize int64 = 50 * 1024 * 1024 // 50 MiB

	// MaxStagingAgeHours is the maximum spread, in hours, between a staging
	// file's first message timestamp and an incoming message's timestamp.
	MaxStagingAgeHours = 3

	// MaxCollisionSuffix bounds how many "_N" suffixes rotation will try
	// before giving up on a target path.
	MaxCollisionSuffix = 10
)

// needsRotation reports whether appending an entry of size incomingSize at
// incomingTS (epoch milliseconds) to the given state should trigger a
// rotation first. firstMsgTS is nil before any entry has started the
// current staging file.
//
// Size is checked with strict ">" (exactly MaxStagingSize does not rotate);
// age is checked with ">=" MaxStagingAgeHours.
func needsRotation(size int64, firstMsgTS *int64, incomingSize int64, incomingTS int64) bool {
	if size+incomingSize > MaxStagingSize {
		return true
	}

	if firstMsgTS == nil {
		return false
	}

	prev := msToUTC(*firstMsgTS)
	curr := msToUTC(incomingTS)

	if !sameUTCDate(prev, curr) {
		return true
	}

	_, hours, _, _ := diff(prev, curr)
	return hours >= MaxStagingAgeHours
}

func msToUTC(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// diff decomposes the elapsed time from a to b into days/hours/minutes/
// seconds using floor division, so a negative span normalizes the way
// Python's timedelta does: -60 seconds is (days=-1, hours=23, minutes=59,
// seconds=0), not (0, 0, -1, 0). Tests rely on this exact shape.
func diff(a, b time.Time) (days, hours, minutes, seconds int) {
	totalSeconds := floorDiv(b.Sub(a).Nanoseconds(), int64(time.Second))

	days = int(floorDiv(totalSeconds, 86400))
	rem := floorMod(totalSeconds, 86400)
	hours = int(floorDiv(rem, 3600))
	rem = floorMod(rem, 3600)
	minutes = int(floorDiv(rem, 60))
	seconds = int(floorMod(rem, 60))
	return
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

// nowMillis returns the current wall-clock time as epoch milliseconds.
func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}
