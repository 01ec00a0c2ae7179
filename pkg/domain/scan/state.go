package scan

// DeriveStatus computes the observable scan state from the stored status and
// the number of provider results reported so far. The stored status wins once
// terminal; before that, the state is an aggregate over provider results:
// no results yet means pending, a partial set means running.
func DeriveStatus(s *Scan, reported int) Status {
	if s.Status.IsTerminal() {
		return s.Status
	}
	if reported == 0 {
		return StatusPending
	}
	return StatusRunning
}
