package support

import (
	"context"
	"fmt"
	"math"

	"github.com/cucumber/godog"
	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pipeline"
	"github.com/fieldlens-tech/fieldlens/internal/textfilter"
)

// positionTolerance is the allowed normalized-coordinate distance between
// an expected location and a detected box edge. Rendering and morphology
// shift raster boxes by a pixel or two.
const positionTolerance = 0.02

// regionTextFilter drives the overlap filter from scenario-supplied text
// regions instead of extracting them from the document.
type regionTextFilter struct {
	filter  *textfilter.Filter
	regions map[int][]field.BBox
}

func (f regionTextFilter) FilterFields(dets []field.Detection, _ string) []field.Detection {
	return f.filter.FilterWithRegions(dets, f.regions)
}

// RegisterPipelineSteps wires the When and Then steps around pipeline runs.
func (testCtx *TestContext) RegisterPipelineSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the detection pipeline runs$`, testCtx.theDetectionPipelineRuns)
	sc.Step(`^the detection pipeline runs with the text filter enabled$`,
		testCtx.theDetectionPipelineRunsWithTheTextFilterEnabled)

	sc.Step(`^detection succeeds$`, testCtx.detectionSucceeds)
	sc.Step(`^(\d+) fields? (?:are|is) detected$`, testCtx.fieldsAreDetected)
	sc.Step(`^no fields are detected$`, testCtx.noFieldsAreDetected)
	sc.Step(`^a "([^"]*)" field labeled "([^"]*)" is detected on page (\d+)$`,
		testCtx.aFieldLabeledIsDetectedOnPage)
	sc.Step(`^a "([^"]*)" field is detected near \((\d+), (\d+)\)$`, testCtx.aFieldIsDetectedNear)
	sc.Step(`^every field comes from source "([^"]*)"$`, testCtx.everyFieldComesFromSource)
	sc.Step(`^a field from source "([^"]*)" is detected$`, testCtx.aFieldFromSourceIsDetected)
	sc.Step(`^every detected field is on page (\d+)$`, testCtx.everyDetectedFieldIsOnPage)
}

func (testCtx *TestContext) theDetectionPipelineRuns() error {
	return testCtx.runPipeline()
}

func (testCtx *TestContext) theDetectionPipelineRunsWithTheTextFilterEnabled() error {
	testCtx.filterEnabled = true
	return testCtx.runPipeline()
}

// runPipeline assembles the document and runs detection over it with any
// injected collaborators in place.
func (testCtx *TestContext) runPipeline() error {
	if err := testCtx.writeDocument(); err != nil {
		return err
	}

	builder := pipeline.NewBuilder()
	if testCtx.visionStub != nil {
		builder = builder.WithVisionDetector(testCtx.visionStub)
	}
	if testCtx.filterEnabled {
		builder = builder.WithFilter(regionTextFilter{
			filter:  textfilter.NewFilter(textfilter.DefaultConfig()),
			regions: testCtx.textRegions,
		})
	}

	testCtx.detections, testCtx.detectErr = builder.Build().DetectFields(
		context.Background(), testCtx.pdfPath, "scenario-document")
	return nil
}

func (testCtx *TestContext) detectionSucceeds() error {
	if testCtx.detectErr != nil {
		return fmt.Errorf("detection failed: %w", testCtx.detectErr)
	}
	return nil
}

func (testCtx *TestContext) fieldsAreDetected(count int) error {
	if len(testCtx.detections) != count {
		return fmt.Errorf("expected %d fields, got %d: %+v", count, len(testCtx.detections), testCtx.detections)
	}
	return nil
}

func (testCtx *TestContext) noFieldsAreDetected() error {
	return testCtx.fieldsAreDetected(0)
}

func (testCtx *TestContext) aFieldLabeledIsDetectedOnPage(fieldType, label string, page int) error {
	for _, det := range testCtx.detections {
		if det.PageIndex == page && det.Label == label && string(det.FieldType) == fieldType {
			return nil
		}
	}
	return fmt.Errorf("no %s field labeled %q on page %d in %+v",
		fieldType, label, page, testCtx.detections)
}

// aFieldIsDetectedNear matches a detection whose lower-left corner sits
// within the position tolerance of the given point coordinates.
func (testCtx *TestContext) aFieldIsDetectedNear(fieldType string, x, y int) error {
	want := normBBox(float64(x), float64(y), 0, 0)
	for _, det := range testCtx.detections {
		if string(det.FieldType) != fieldType {
			continue
		}
		if math.Abs(det.BBox.X-want.X) <= positionTolerance &&
			math.Abs(det.BBox.Y-want.Y) <= positionTolerance {
			return nil
		}
	}
	return fmt.Errorf("no %s field near (%d, %d) in %+v", fieldType, x, y, testCtx.detections)
}

func (testCtx *TestContext) everyFieldComesFromSource(source string) error {
	if len(testCtx.detections) == 0 {
		return fmt.Errorf("no fields detected")
	}
	for _, det := range testCtx.detections {
		if string(det.Source) != source {
			return fmt.Errorf("field %q has source %s, want %s", det.Label, det.Source, source)
		}
	}
	return nil
}

func (testCtx *TestContext) aFieldFromSourceIsDetected(source string) error {
	for _, det := range testCtx.detections {
		if string(det.Source) == source {
			return nil
		}
	}
	return fmt.Errorf("no field from source %q in %+v", source, testCtx.detections)
}

func (testCtx *TestContext) everyDetectedFieldIsOnPage(page int) error {
	if len(testCtx.detections) == 0 {
		return fmt.Errorf("no fields detected")
	}
	for _, det := range testCtx.detections {
		if det.PageIndex != page {
			return fmt.Errorf("field %q is on page %d, want %d", det.Label, det.PageIndex, page)
		}
	}
	return nil
}
