package support

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/glean/internal/pipeline"
	"github.com/MeKo-Tech/glean/internal/roles"
	"github.com/MeKo-Tech/glean/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterSteps binds every step definition to tc.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Scenes
	sc.Step(`^a plate photo (\d+) pixels wide showing:$`, tc.aPlatePhotoShowing)
	sc.Step(`^a chat screenshot (\d+) pixels wide with bubbles:$`, tc.aChatScreenshotWithBubbles)
	sc.Step(`^a blank image (\d+) pixels wide$`, tc.aBlankImage)
	sc.Step(`^the whole image reads "([^"]*)"$`, tc.theWholeImageReads)
	sc.Step(`^the whole image reads:$`, func(doc *godog.DocString) error {
		tc.PageText = doc.Content
		return nil
	})

	// Detections
	sc.Step(`^region (\d+) is detected again with confidence ([\d.]+)$`, tc.duplicate)
	sc.Step(`^every detection has confidence ([\d.]+)$`, tc.everyDetectionHasConfidence)
	sc.Step(`^a "([^"]*)" detection lies outside the image$`, func(label string) error {
		tc.addOutside(label)
		return nil
	})
	sc.Step(`^region (\d+) is labelled "([^"]*)"$`, tc.regionIsLabelled)

	// Configuration and engine
	sc.Step(`^the message class "([^"]*)" maps to role "([^"]*)"$`, tc.messageClassMapsTo)
	sc.Step(`^the confidence threshold is ([\d.]+)$`, tc.confidenceThresholdIs)
	sc.Step(`^the OCR engine fails on region (\d+)$`, func(n int) error {
		tc.FailRegion = append(tc.FailRegion, n)
		return nil
	})
	sc.Step(`^the OCR engine reports confidence ([\d.]+)$`, func(c float64) error {
		tc.Confidence = &c
		return nil
	})
	sc.Step(`^failed regions are skipped$`, func() error {
		tc.Config.SkipFailedRegions = true
		return nil
	})
	sc.Step(`^(\d+) workers? read regions?$`, func(n int) error {
		tc.Workers = n
		return nil
	})
	sc.Step(`^generic images are read in paragraph mode$`, func() error {
		tc.Config.Generic.Paragraph = true
		return nil
	})

	// Running
	sc.Step(`^I run the (\w+) pipeline$`, tc.Run)

	// Outcomes
	sc.Step(`^the text should be "([^"]*)"$`, tc.theTextShouldBe)
	sc.Step(`^the text should be:$`, func(doc *godog.DocString) error {
		return tc.theTextShouldBe(doc.Content)
	})
	sc.Step(`^the text should be empty$`, func() error { return tc.theTextShouldBe("") })
	sc.Step(`^the result should (not )?come from detected regions$`, tc.theResultShouldBeDetected)
	sc.Step(`^the group should be "([^"]*)"$`, tc.theGroupShouldBe)
	sc.Step(`^the app should be "([^"]*)"$`, tc.theAppShouldBe)
	sc.Step(`^the confidence should be ([\d.]+)$`, tc.theConfidenceShouldBe)
	sc.Step(`^the confidence should be absent$`, tc.theConfidenceShouldBeAbsent)
	sc.Step(`^the result should list (\d+) fragments?$`, tc.theResultShouldListFragments)
	sc.Step(`^fragment (\d+) should have role "([^"]*)"$`, tc.fragmentShouldHaveRole)
	sc.Step(`^the OCR engine should have been called (\d+) times?$`, tc.theOCREngineShouldHaveBeenCalled)
	sc.Step(`^the run should fail with a recognition error$`, func() error {
		return tc.theRunShouldFailWith(pipeline.ErrRecognitionUnavailable)
	})
}

func (tc *TestContext) aPlatePhotoShowing(width int, table *godog.Table) error {
	var plates []string
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		plates = append(plates, row.Cells[0].Value)
	}
	tc.Scene = testutil.PlateScene(width, plates)
	return nil
}

func (tc *TestContext) aChatScreenshotWithBubbles(width int, table *godog.Table) error {
	var bubbles []testutil.Bubble
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) != 2 {
			return errors.New("bubble rows need a role and a text column")
		}
		r, err := roles.ParseRole(row.Cells[0].Value)
		if err != nil {
			return err
		}
		bubbles = append(bubbles, testutil.Bubble{Role: r, Text: row.Cells[1].Value})
	}
	tc.Scene = testutil.ChatScene(width, bubbles)
	return nil
}

func (tc *TestContext) aBlankImage(width int) error {
	tc.Scene = testutil.PlateScene(width, nil)
	return nil
}

func (tc *TestContext) theWholeImageReads(text string) error {
	tc.PageText = text
	return nil
}

func (tc *TestContext) everyDetectionHasConfidence(c float64) error {
	for i := range tc.Scene.Detections {
		tc.Scene.Detections[i].Confidence = c
	}
	return nil
}

func (tc *TestContext) regionIsLabelled(n int, label string) error {
	det, err := tc.region(n)
	if err != nil {
		return err
	}
	det.Label = label
	return nil
}

func (tc *TestContext) messageClassMapsTo(class, role string) error {
	tc.Config.Message.Classes[class] = role
	return nil
}

func (tc *TestContext) confidenceThresholdIs(v float64) error {
	tc.Config.Plate.Filter.ConfidenceThreshold = v
	tc.Config.Message.Filter.ConfidenceThreshold = v
	return nil
}

func (tc *TestContext) result() (*pipeline.Result, error) {
	if tc.Err != nil {
		return nil, fmt.Errorf("run failed: %w", tc.Err)
	}
	if tc.Result == nil {
		return nil, errors.New("no result, did the scenario run the pipeline?")
	}
	return tc.Result, nil
}

func (tc *TestContext) theTextShouldBe(want string) error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	if got := res.Text; normalize(got) != normalize(want) {
		return fmt.Errorf("text = %q, want %q", got, want)
	}
	return nil
}

func (tc *TestContext) theResultShouldBeDetected(not string) error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	want := not == ""
	if res.Detected != want {
		return fmt.Errorf("detected = %v, want %v", res.Detected, want)
	}
	if !want && len(res.Fragments) > 0 {
		return fmt.Errorf("fallback result carries %d fragments", len(res.Fragments))
	}
	return nil
}

func (tc *TestContext) theGroupShouldBe(want string) error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	if res.Group != want {
		return fmt.Errorf("group = %q, want %q", res.Group, want)
	}
	return nil
}

func (tc *TestContext) theAppShouldBe(want string) error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	if res.App != want {
		return fmt.Errorf("app = %q, want %q", res.App, want)
	}
	return nil
}

func (tc *TestContext) theConfidenceShouldBe(want float64) error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	if res.Confidence == nil {
		return errors.New("confidence is absent")
	}
	if diff := *res.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("confidence = %v, want %v", *res.Confidence, want)
	}
	return nil
}

func (tc *TestContext) theConfidenceShouldBeAbsent() error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	if res.Confidence != nil {
		return fmt.Errorf("confidence = %v, want none", *res.Confidence)
	}
	return nil
}

func (tc *TestContext) theResultShouldListFragments(n int) error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	if len(res.Fragments) != n {
		return fmt.Errorf("%d fragments, want %d", len(res.Fragments), n)
	}
	return nil
}

func (tc *TestContext) fragmentShouldHaveRole(n int, role string) error {
	res, err := tc.result()
	if err != nil {
		return err
	}
	if n < 1 || n > len(res.Fragments) {
		return fmt.Errorf("no fragment %d, result has %d", n, len(res.Fragments))
	}
	if got := res.Fragments[n-1].Role.String(); got != role {
		return fmt.Errorf("fragment %d role = %s, want %s", n, got, role)
	}
	return nil
}

func (tc *TestContext) theOCREngineShouldHaveBeenCalled(n int) error {
	if tc.Recognizer == nil {
		return errors.New("pipeline was not run")
	}
	if calls := len(tc.Recognizer.Calls()); calls != n {
		return fmt.Errorf("OCR engine called %d times, want %d (%s)", calls, n, describeCalls(tc.Recognizer))
	}
	return nil
}

func (tc *TestContext) theRunShouldFailWith(target error) error {
	if tc.Err == nil {
		return errors.New("run succeeded, want an error")
	}
	if !errors.Is(tc.Err, target) {
		return fmt.Errorf("error %q is not %q", tc.Err, target)
	}
	return nil
}

func describeCalls(r *testutil.LookupRecognizer) string {
	calls := r.Calls()
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = strconv.Itoa(c.X) + "x" + strconv.Itoa(c.Y)
	}
	return strings.Join(parts, ", ")
}
