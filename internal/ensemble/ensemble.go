package ensemble

import (
	"log/slog"
	"sort"

	"github.com/fieldlens-tech/fieldlens/internal/field"
)

// DefaultIoUThreshold is the overlap above which two detections on the
// same page are treated as the same field.
const DefaultIoUThreshold = 0.30

// Config holds the merge thresholds. A nil Priorities map selects the
// default source ranking.
type Config struct {
	IoUThreshold float64
	Priorities   map[field.DetectionSource]int
}

// DefaultConfig returns the default merge thresholds.
func DefaultConfig() Config {
	return Config{IoUThreshold: DefaultIoUThreshold}
}

// Merger combines detections from the structure, geometric, and vision
// detectors into one deduplicated list. Overlap conflicts are won by
// source priority; labels, types, and confidences of the losers may
// still refine the winner.
type Merger struct {
	iouThreshold float64
	priorities   map[field.DetectionSource]int
}

// NewMerger returns a Merger using cfg, falling back to the defaults
// for unset values.
func NewMerger(cfg Config) *Merger {
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	if cfg.Priorities == nil {
		cfg.Priorities = field.DefaultPriorities()
	}
	return &Merger{iouThreshold: cfg.IoUThreshold, priorities: cfg.Priorities}
}

// Merge deduplicates the three detector outputs and returns them sorted
// by page, then top-to-bottom, then left-to-right. Nil inputs count as
// empty.
func (m *Merger) Merge(structure, geometric, vision []field.Detection) []field.Detection {
	total := len(structure) + len(geometric) + len(vision)
	if total == 0 {
		return nil
	}

	combined := make([]field.Detection, 0, total)
	combined = append(combined, structure...)
	combined = append(combined, geometric...)
	combined = append(combined, vision...)
	slog.Debug("Merging detections",
		"structure", len(structure), "geometric", len(geometric), "vision", len(vision))

	sortByPriority(combined, m.priorities)
	kept := m.dedup(combined)
	sortByPosition(kept)

	slog.Debug("Merge complete", "total", total, "kept", len(kept))
	return kept
}

// MergeWithAcroForm deduplicates explicit AcroForm detections against
// detector output, with AcroForm winning every overlap.
func (m *Merger) MergeWithAcroForm(acroform, others []field.Detection) []field.Detection {
	if len(acroform) == 0 {
		return others
	}
	if len(others) == 0 {
		return acroform
	}

	combined := make([]field.Detection, 0, len(acroform)+len(others))
	combined = append(combined, acroform...)
	combined = append(combined, others...)
	sortByPriority(combined, field.AcroFormFirstPriorities())
	return m.dedup(combined)
}

// dedup walks detections in priority order, keeping each one unless it
// overlaps a kept detection on the same page, in which case the kept
// detection absorbs it.
func (m *Merger) dedup(dets []field.Detection) []field.Detection {
	var kept []field.Detection
	for _, det := range dets {
		merged := false
		for i := range kept {
			if kept[i].PageIndex != det.PageIndex {
				continue
			}
			iou := det.BBox.IoU(kept[i].BBox)
			if iou <= m.iouThreshold {
				continue
			}
			slog.Debug("Absorbing overlapping detection",
				"iou", iou, "kept", kept[i].Source, "candidate", det.Source)
			kept[i] = resolveConflict(kept[i], det)
			merged = true
			break
		}
		if !merged {
			kept = append(kept, det)
		}
	}
	return kept
}

// resolveConflict folds a lower-priority detection into the winner: a
// real label replaces a generic one, types reconcile per resolveType,
// and the confidence takes the maximum.
func resolveConflict(winner, loser field.Detection) field.Detection {
	if field.IsGenericLabel(winner.Label) && !field.IsGenericLabel(loser.Label) {
		winner.Label = loser.Label
	}
	winner.FieldType = resolveType(winner, loser)
	if loser.Confidence > winner.Confidence {
		winner.Confidence = loser.Confidence
	}
	return winner
}

// resolveType reconciles conflicting field types. A checkbox claim beats
// text when the winning box is checkbox-sized; a geometric signature
// claim beats text. The winner's type stands otherwise.
func resolveType(primary, secondary field.Detection) field.FieldType {
	if primary.FieldType == secondary.FieldType {
		return primary.FieldType
	}
	if secondary.FieldType == field.TypeCheckbox && primary.FieldType == field.TypeText &&
		field.CheckboxSized(primary.BBox) {
		return field.TypeCheckbox
	}
	if secondary.Source == field.SourceGeometric && secondary.FieldType == field.TypeSignature &&
		primary.FieldType == field.TypeText {
		return field.TypeSignature
	}
	return primary.FieldType
}

func sortByPriority(dets []field.Detection, priorities map[field.DetectionSource]int) {
	sort.SliceStable(dets, func(i, j int) bool {
		return rank(priorities, dets[i].Source) < rank(priorities, dets[j].Source)
	})
}

func rank(priorities map[field.DetectionSource]int, s field.DetectionSource) int {
	if p, ok := priorities[s]; ok {
		return p
	}
	return len(priorities) + 1
}

// sortByPosition orders by page, then visually top-to-bottom (higher
// top edge first in bottom-left coordinates), then left-to-right.
func sortByPosition(dets []field.Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		a, b := dets[i], dets[j]
		if a.PageIndex != b.PageIndex {
			return a.PageIndex < b.PageIndex
		}
		topA, topB := a.BBox.Y+a.BBox.Height, b.BBox.Y+b.BBox.Height
		if topA != topB {
			return topA > topB
		}
		return a.BBox.X < b.BBox.X
	})
}
