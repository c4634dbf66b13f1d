package field

// FieldType classifies what kind of input a detected region expects.
type FieldType string

// Field types recognized by the detectors.
const (
	TypeText      FieldType = "text"
	TypeMultiline FieldType = "multiline"
	TypeCheckbox  FieldType = "checkbox"
	TypeDate      FieldType = "date"
	TypeNumber    FieldType = "number"
	TypeSignature FieldType = "signature"
	TypeUnknown   FieldType = "unknown"
)

// ParseFieldType maps a string onto a known field type, falling back to
// TypeUnknown for anything unrecognized.
func ParseFieldType(s string) FieldType {
	switch t := FieldType(s); t {
	case TypeText, TypeMultiline, TypeCheckbox, TypeDate, TypeNumber, TypeSignature, TypeUnknown:
		return t
	default:
		return TypeUnknown
	}
}

// DetectionSource identifies which detector produced a detection.
type DetectionSource string

// Detection sources.
const (
	SourceStructure DetectionSource = "structure"
	SourceGeometric DetectionSource = "geometric"
	SourceVision    DetectionSource = "vision"
	SourceAcroForm  DetectionSource = "acroform"
	SourceMerged    DetectionSource = "merged"
)

// ParseDetectionSource maps a string onto a known source; the second
// return is false for unrecognized values.
func ParseDetectionSource(s string) (DetectionSource, bool) {
	switch src := DetectionSource(s); src {
	case SourceStructure, SourceGeometric, SourceVision, SourceAcroForm, SourceMerged:
		return src, true
	default:
		return "", false
	}
}

// DefaultPriorities returns the standard merge ranking. Lower values win
// overlap conflicts.
func DefaultPriorities() map[DetectionSource]int {
	return map[DetectionSource]int{
		SourceStructure: 1,
		SourceGeometric: 2,
		SourceVision:    3,
		SourceAcroForm:  4,
		SourceMerged:    5,
	}
}

// AcroFormFirstPriorities ranks explicit AcroForm detections above all
// detector-derived sources.
func AcroFormFirstPriorities() map[DetectionSource]int {
	return map[DetectionSource]int{
		SourceAcroForm:  1,
		SourceStructure: 2,
		SourceGeometric: 3,
		SourceVision:    4,
		SourceMerged:    5,
	}
}
