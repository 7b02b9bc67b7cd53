package main

import (
	"github.com/cheggaaa/pb/v3"

	"github.com/depotproject/depot/cache"
)

// newProgressBar adapts a pb bar to the cache.Progress callback. The
// bar appears on the first callback, once the total is known.
func newProgressBar() (cache.Progress, func()) {
	var bar *pb.ProgressBar
	progress := func(copied, total int64) {
		if bar == nil {
			if total < 0 {
				total = 0
			}
			bar = pb.Full.Start64(total)
		}
		bar.SetCurrent(copied)
	}
	finish := func() {
		if bar != nil {
			bar.Finish()
		}
	}
	return progress, finish
}
