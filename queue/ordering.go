/*
ordering.go - Deterministic service order for a doctor's queue

PURPOSE:
  Given the tokens admitted for a doctor-day, produce the order patients
  should be seen in: emergencies first, then priority, follow-up, online,
  walk-in; arrival order breaks ties. Terminal tokens trail the waiting
  ones so the full display queue still shows the day's history.

PURITY:
  OrderForService is a pure function of its input. It holds no state and
  never touches a store; callers pass the current token set each time.
  That keeps queue views deterministic and trivially testable.
*/
package queue

import "sort"

// OrderForService filters tokens to the given doctor-day and returns them
// in service order: waiting tokens stable-sorted by (priority rank asc,
// arrival asc), followed by non-waiting tokens in arrival order. The input
// slice is not modified.
func OrderForService(tokens []Token, doctorID DoctorID, day Day) []Token {
	var waiting, settled []Token
	for _, t := range tokens {
		if t.DoctorID != doctorID || !t.Day().Equal(day) {
			continue
		}
		if t.Status == StatusWaiting {
			waiting = append(waiting, t)
		} else {
			settled = append(settled, t)
		}
	}

	sort.SliceStable(waiting, func(i, j int) bool {
		ri, rj := waiting[i].Source.Rank(), waiting[j].Source.Rank()
		if ri != rj {
			return ri < rj
		}
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})
	// Terminal tokens carry no priority meaning; arrival order only.
	sort.SliceStable(settled, func(i, j int) bool {
		return settled[i].CreatedAt.Before(settled[j].CreatedAt)
	})

	ordered := make([]Token, 0, len(waiting)+len(settled))
	ordered = append(ordered, waiting...)
	ordered = append(ordered, settled...)
	return ordered
}

// NextPatient returns the head of the waiting sub-sequence: the token that
// should be served next. ok is false when nobody is waiting.
func NextPatient(tokens []Token, doctorID DoctorID, day Day) (Token, bool) {
	ordered := OrderForService(tokens, doctorID, day)
	if len(ordered) == 0 || ordered[0].Status != StatusWaiting {
		return Token{}, false
	}
	return ordered[0], true
}
