package field

import "sort"

// DedupIoUThreshold is the overlap above which two same-page detections
// from one source are considered duplicates.
const DedupIoUThreshold = 0.5

// DedupOverlapping keeps the highest confidence detection of every
// overlapping same-page group and drops the rest. The result is ordered by
// descending confidence, stable for ties.
func DedupOverlapping(dets []Detection, iouThreshold float64) []Detection {
	sorted := append([]Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		dup := false
		for _, k := range kept {
			if k.PageIndex == d.PageIndex && k.BBox.IoU(d.BBox) > iouThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, d)
		}
	}
	return kept
}
