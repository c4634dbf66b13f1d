package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/testutil"
)

// TestContext holds the state shared by the steps of one scenario.
type TestContext struct {
	// Test environment
	TempDir string

	// Document under construction
	pages   []testutil.PDFPage
	pdfPath string

	// Injected collaborators
	textRegions   map[int][]field.BBox
	visionStub    *visionStub
	filterEnabled bool

	// Pipeline results
	detections []field.Detection
	detectErr  error
}

// NewTestContext creates a new test context with a private temp directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "fieldlens-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		TempDir:     tempDir,
		textRegions: make(map[int][]field.BBox),
	}, nil
}

// Cleanup removes the artifacts created during a scenario.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.TempDir != "" {
		return os.RemoveAll(testCtx.TempDir)
	}
	return nil
}

// writeDocument assembles the accumulated pages into a PDF file.
func (testCtx *TestContext) writeDocument() error {
	if len(testCtx.pages) == 0 {
		return errors.New("no document defined; add a Given step first")
	}

	path := filepath.Join(testCtx.TempDir, "scenario.pdf")
	if err := os.WriteFile(path, testutil.BuildPDF(testCtx.pages...), 0o600); err != nil {
		return fmt.Errorf("failed to write scenario document: %w", err)
	}
	testCtx.pdfPath = path
	return nil
}

// normBBox converts point coordinates on a default-size page to the
// normalized bottom-left form the detectors emit.
func normBBox(x, y, w, h float64) field.BBox {
	return field.BBox{
		X:      x / testutil.DefaultPageWidth,
		Y:      y / testutil.DefaultPageHeight,
		Width:  w / testutil.DefaultPageWidth,
		Height: h / testutil.DefaultPageHeight,
	}
}
