package field

// Shape thresholds for geometry-based field classification. Aspect is
// width over height.
const (
	checkboxMaxSide   = 0.03
	checkboxMinAspect = 0.5
	checkboxMaxAspect = 2.0

	signatureMinAspect = 4.0
	signatureMaxHeight = 0.05

	rasterSignatureMinAspect = 8.0
	rasterSignatureMaxHeight = 0.02
)

// Bounds for the merger's checkbox-claim check, looser than the
// detection-time checkbox thresholds.
const (
	checkboxClaimMaxSide   = 0.05
	checkboxClaimMinAspect = 0.5
	checkboxClaimMaxAspect = 2.0
)

// ClassifyShape assigns a field type from normalized box dimensions for
// regions found in PDF structure (widget rects, drawn rectangles,
// placed XObjects).
func ClassifyShape(width, height float64) FieldType {
	return classifyShape(width, height, signatureMinAspect, signatureMaxHeight)
}

// ClassifyRasterShape assigns a field type for regions found in
// rendered page rasters. The signature bounds are stricter than
// ClassifyShape's.
func ClassifyRasterShape(width, height float64) FieldType {
	return classifyShape(width, height, rasterSignatureMinAspect, rasterSignatureMaxHeight)
}

func classifyShape(width, height, sigMinAspect, sigMaxHeight float64) FieldType {
	if height <= 0 {
		return TypeText
	}
	aspect := width / height
	if width < checkboxMaxSide && height < checkboxMaxSide &&
		aspect >= checkboxMinAspect && aspect <= checkboxMaxAspect {
		return TypeCheckbox
	}
	if aspect >= sigMinAspect && height <= sigMaxHeight {
		return TypeSignature
	}
	return TypeText
}

// CheckboxSized reports whether the box is small and square enough to
// plausibly hold a checkbox.
func CheckboxSized(b BBox) bool {
	if b.Height <= 0 {
		return false
	}
	aspect := b.Width / b.Height
	return b.Width <= checkboxClaimMaxSide && b.Height <= checkboxClaimMaxSide &&
		aspect >= checkboxClaimMinAspect && aspect <= checkboxClaimMaxAspect
}
