package reporting

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/role-ci/types"
)

// junitOutputTail bounds how much captured output is embedded in a failure
const junitOutputTail = 4096

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Cases     []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

// JUnitFormatter renders one testsuite per stage and one testcase per task
type JUnitFormatter struct{}

// Format encodes the run as JUnit XML
func (JUnitFormatter) Format(run *types.PipelineRun) (string, error) {
	doc := junitTestSuites{
		Name:     "role-ci " + run.RunID,
		Tests:    run.Stats.Total,
		Failures: run.Stats.Failed,
		Skipped:  run.Stats.Skipped,
		Time:     seconds(run.Duration().Seconds()),
	}

	for i := range run.Stages {
		stage := &run.Stages[i]
		suite := junitTestSuite{
			Name:     stage.Name,
			Tests:    stage.Stats.Total,
			Failures: stage.Stats.Failed,
			Skipped:  stage.Stats.Skipped,
			Time:     seconds(stage.Duration().Seconds()),
			Cases:    make([]junitTestCase, 0, len(stage.Tasks)),
		}
		if !stage.StartedAt.IsZero() {
			suite.Timestamp = stage.StartedAt.UTC().Format("2006-01-02T15:04:05")
		}

		for _, task := range stage.Tasks {
			tc := junitTestCase{
				Name:      task.Target + " [" + task.Scenario + "]",
				Classname: stage.Name + "." + task.Target,
				Time:      seconds(task.Duration().Seconds()),
			}
			switch {
			case task.Status.IsFailure():
				tc.Failure = &junitFailure{
					Message: task.Reason,
					Type:    string(task.Status),
					Body:    outputTail(task.Output, junitOutputTail),
				}
			case task.Status == types.TaskStatusSkipped:
				tc.Skipped = &junitSkipped{Message: task.Reason}
			case task.Output != "":
				tc.SystemOut = outputTail(task.Output, junitOutputTail)
			}
			suite.Cases = append(suite.Cases, tc)
		}
		doc.Suites = append(doc.Suites, suite)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run as JUnit: %w", err)
	}
	return xml.Header + string(data) + "\n", nil
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

// outputTail keeps the last max bytes of output, starting at a line boundary when possible
func outputTail(output string, max int) string {
	if len(output) <= max {
		return output
	}
	tail := output[len(output)-max:]
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return "[... output truncated ...]\n" + tail
}
