package dispatch

import (
	"time"

	"nimbus-chat/relay/pkg/credential"
)

// selectLocked picks the credential for the next attempt. Callers hold e.mu.
//
// The algorithm, over the order-preserving active view:
//  1. No active entries: fail with ErrNoActiveCredentials.
//  2. Scan forward from the cursor (wrapping) for the first entry that is
//     not rate-limited, or whose cooldown has elapsed; an elapsed cooldown
//     clears the flag as a side effect of the scan.
//  3. If the scan lands on the cursor entry and its quota is spent, advance
//     the cursor and re-run the scan, so quota exhaustion forces rotation
//     even when the current entry is healthy.
//  4. If every active entry is cooling down, advance the cursor by one and
//     select that entry anyway. Selection never blocks on cooldowns.
//  5. Count the use and return the entry.
func (e *Engine) selectLocked(now time.Time) (*credential.Entry, error) {
	active := e.pool.ActiveEntries()
	if len(active) == 0 {
		return nil, ErrNoActiveCredentials
	}

	if e.cursor >= len(active) {
		e.cursor = 0
		e.usageCounter = 0
	}

	var selected *credential.Entry

	// The loop runs at most twice: a second pass only happens after a
	// quota advance, which resets the usage counter and so cannot
	// re-trigger the quota branch.
	for pass := 0; pass < 2; pass++ {
		idx, found := e.scanFrom(active, now)

		if !found {
			e.cursor = (e.cursor + 1) % len(active)
			e.usageCounter = 0
			selected = active[e.cursor]
			break
		}

		if idx == e.cursor && e.usageCounter >= active[idx].Quota() {
			e.cursor = (e.cursor + 1) % len(active)
			e.usageCounter = 0
			continue
		}

		if idx != e.cursor {
			e.cursor = idx
			e.usageCounter = 0
		}
		selected = active[idx]
		break
	}

	e.usageCounter++
	return selected, nil
}

// scanFrom walks the active view starting at the cursor, wrapping, and
// returns the index of the first selectable entry. Rate-limited entries
// whose cooldown has elapsed are cleared and count as selectable.
func (e *Engine) scanFrom(active []*credential.Entry, now time.Time) (int, bool) {
	cooldown := e.opts.cooldown()

	for i := 0; i < len(active); i++ {
		idx := (e.cursor + i) % len(active)
		entry := active[idx]

		if !entry.RateLimited {
			return idx, true
		}
		if entry.CooldownElapsed(now, cooldown) {
			entry.RateLimited = false
			return idx, true
		}
	}

	return 0, false
}
