package controller

import "time"

// EvaluateSLA decides whether an object that has been at sla's state value
// for inStateDuration has exceeded its configured SLA. Used by the
// dispatcher to color metrics and to promote Wait/DoNothing outcomes to
// TimeInStateAboveSla errors (see the transition table in §4.5 of the
// design).
func EvaluateSLA(sla StateSLA, inStateDuration time.Duration) bool {
	return sla.AboveSLA(inStateDuration)
}
