// README: Route window over the ride log and the recorded driver path.
package ride

import "time"

// WindowFor returns the half-open [start, end) interval of the driver's
// samples that belong to the ride. logs must be ordered oldest first.
func WindowFor(r Ride, logs []Log, now time.Time) (time.Time, time.Time) {
	start, ok := firstLog(logs, StateDriving)
	if !ok {
		if r.State.in(StateRequested, StateAccepted) {
			start = now
		} else {
			start = r.CreatedAt
		}
	}

	end, ok := firstLog(logs, StateDropoff)
	if !ok {
		if r.State.in(StateAccepted, StateDriving, StateDropoff) {
			end = now
		} else {
			end = r.UpdatedAt
		}
	}
	return start, end
}

func firstLog(logs []Log, s State) (time.Time, bool) {
	for _, l := range logs {
		if l.State == s {
			return l.CreatedAt, true
		}
	}
	return time.Time{}, false
}
