package support

import (
	"fmt"

	"github.com/cucumber/godog"
	"github.com/fieldlens-tech/fieldlens/internal/testutil"
)

// RegisterDocumentSteps wires the Given steps that assemble documents.
func (testCtx *TestContext) RegisterDocumentSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a blank document$`, testCtx.aBlankDocument)
	sc.Step(`^a document with a text widget named "([^"]*)"$`, testCtx.aDocumentWithATextWidgetNamed)
	sc.Step(`^a checkbox widget named "([^"]*)" on the same page$`, testCtx.aCheckboxWidgetNamedOnTheSamePage)
	sc.Step(`^a page with a stroked rectangle at \((\d+), (\d+)\) sized (\d+)x(\d+)$`,
		testCtx.aPageWithAStrokedRectangle)
	sc.Step(`^the first page also shows a stroked rectangle at \((\d+), (\d+)\) sized (\d+)x(\d+)$`,
		testCtx.theFirstPageAlsoShowsAStrokedRectangle)
	sc.Step(`^a blank trailing page$`, testCtx.aBlankTrailingPage)
	sc.Step(`^printed text covers \((\d+), (\d+)\) sized (\d+)x(\d+) on page (\d+)$`,
		testCtx.printedTextCovers)
}

func (testCtx *TestContext) aBlankDocument() error {
	testCtx.pages = append(testCtx.pages, testutil.PDFPage{})
	return nil
}

// aDocumentWithATextWidgetNamed adds a page holding one AcroForm text widget.
func (testCtx *TestContext) aDocumentWithATextWidgetNamed(name string) error {
	testCtx.pages = append(testCtx.pages, testutil.PDFPage{
		Widgets: []testutil.PDFWidget{
			{Name: name, Rect: [4]float64{72, 700, 122, 720}},
		},
	})
	return nil
}

// aCheckboxWidgetNamedOnTheSamePage adds a checkbox widget to the last page.
func (testCtx *TestContext) aCheckboxWidgetNamedOnTheSamePage(name string) error {
	if len(testCtx.pages) == 0 {
		return fmt.Errorf("no page to add widget %q to", name)
	}
	page := &testCtx.pages[len(testCtx.pages)-1]
	page.Widgets = append(page.Widgets, testutil.PDFWidget{
		Name:      name,
		Rect:      [4]float64{72, 650, 87, 665},
		FieldType: "Btn",
	})
	return nil
}

// The rectangles are drawn as stroked paths rather than re operators, so
// they are invisible to the content-stream rect harvest and only the
// rendered-page pass can find them.
func (testCtx *TestContext) aPageWithAStrokedRectangle(x, y, w, h int) error {
	testCtx.pages = append(testCtx.pages, testutil.PDFPage{
		Content: testutil.RectPathStroke(float64(x), float64(y), float64(w), float64(h)),
	})
	return nil
}

func (testCtx *TestContext) theFirstPageAlsoShowsAStrokedRectangle(x, y, w, h int) error {
	if len(testCtx.pages) == 0 {
		return fmt.Errorf("no first page to draw on")
	}
	testCtx.pages[0].Content += testutil.RectPathStroke(float64(x), float64(y), float64(w), float64(h))
	return nil
}

func (testCtx *TestContext) aBlankTrailingPage() error {
	testCtx.pages = append(testCtx.pages, testutil.PDFPage{})
	return nil
}

// printedTextCovers records a page region as holding printed text, which
// the text filter treats like extracted text lines.
func (testCtx *TestContext) printedTextCovers(x, y, w, h, page int) error {
	bbox := normBBox(float64(x), float64(y), float64(w), float64(h))
	testCtx.textRegions[page] = append(testCtx.textRegions[page], bbox)
	return nil
}
