package frame

// selectVictim runs the clock scan from the current hand position. Pinned
// frames are skipped, frames whose accessed bit is set get the bit cleared
// and a second chance, and the first unpinned frame with a clear bit is the
// victim. The hand is left just past the victim. It returns nil if every
// frame is pinned, or if the unpinned frames were accessed again faster than
// two revolutions could clear them. Must be called with the lock held.
func (r *Registry) selectVictim() *frameEntry {
	n := len(r.ring)
	if !r.hasUnpinned() {
		return nil
	}

	// Running threads set accessed bits without the registry lock, so two
	// revolutions are a bound and not a guarantee.
	for step := 0; step < 2*n; step++ {
		e := r.ring[r.hand]
		r.hand = (r.hand + 1) % n

		if e.Pinned {
			continue
		}

		if r.pageDir.IsAccessed(e.PID, e.VAddr) {
			r.pageDir.SetAccessed(e.PID, e.VAddr, false)
			continue
		}

		return e
	}

	return nil
}

func (r *Registry) hasUnpinned() bool {
	for _, e := range r.ring {
		if !e.Pinned {
			return true
		}
	}

	return false
}
