package limiter

const (
	histSize = 16
	histMask = histSize - 1
)

// histmin reports the minimum over the most recent hlen values written.
// It keeps the current minimum cached together with a countdown of how
// many more writes that minimum stays inside the window, so a write is
// amortised O(1) with a worst case of one hlen-element rescan.
type histmin struct {
	hlen int
	hold int
	wind int
	vmin float32
	hist [histSize]float32
}

// init configures the window length and fills the history with 1.0, so
// the reported minimum is unity gain until hlen real values arrive.
func (h *histmin) init(hlen int) {
	if hlen > histSize {
		hlen = histSize
	}

	h.hlen = hlen
	h.hold = hlen
	h.wind = 0
	h.vmin = 1

	for i := range h.hist {
		h.hist[i] = h.vmin
	}
}

// write appends v and returns the minimum of the last hlen values.
func (h *histmin) write(v float32) float32 {
	i := h.wind
	h.hist[i] = v

	if v <= h.vmin {
		// Ties refresh the hold so a flat stretch never forces a rescan.
		h.vmin = v
		h.hold = h.hlen
	} else {
		h.hold--
		if h.hold == 0 {
			// The cached minimum just left the window. Rescan the
			// remaining hlen-1 entries; the hold becomes the distance
			// until the new minimum expires in turn.
			h.vmin = v
			h.hold = h.hlen

			for j := 1 - h.hlen; j < 0; j++ {
				v = h.hist[(i+j)&histMask]
				if v < h.vmin {
					h.vmin = v
					h.hold = h.hlen + j
				}
			}
		}
	}

	h.wind = (i + 1) & histMask

	return h.vmin
}

// current returns the minimum without writing.
func (h *histmin) current() float32 {
	return h.vmin
}
