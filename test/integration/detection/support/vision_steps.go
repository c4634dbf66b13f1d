package support

import (
	"context"
	"errors"

	"github.com/cucumber/godog"
	"github.com/fieldlens-tech/fieldlens/internal/field"
)

// visionStub stands in for the remote vision provider.
type visionStub struct {
	dets []field.Detection
	err  error
}

func (s *visionStub) Configured() bool { return true }

func (s *visionStub) DetectFields(_ context.Context, _, _ string) ([]field.Detection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.dets, nil
}

// RegisterVisionSteps wires the steps that swap in a vision detector.
func (testCtx *TestContext) RegisterVisionSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a vision detector that reports a "([^"]*)" field labeled "([^"]*)" on page (\d+)$`,
		testCtx.aVisionDetectorThatReportsAField)
	sc.Step(`^a vision detector that always fails$`, testCtx.aVisionDetectorThatAlwaysFails)
}

func (testCtx *TestContext) aVisionDetectorThatReportsAField(fieldType, label string, page int) error {
	testCtx.visionStub = &visionStub{
		dets: []field.Detection{{
			PageIndex:  page,
			BBox:       field.BBox{X: 0.3, Y: 0.45, Width: 0.28, Height: 0.03},
			FieldType:  field.FieldType(fieldType),
			Label:      label,
			Confidence: 0.9,
			Source:     field.SourceVision,
		}},
	}
	return nil
}

func (testCtx *TestContext) aVisionDetectorThatAlwaysFails() error {
	testCtx.visionStub = &visionStub{err: errors.New("vision provider unavailable")}
	return nil
}
