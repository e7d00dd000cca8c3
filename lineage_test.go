package threadtree

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
)

func concatLines(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestLineageFormat(t *testing.T) {
	t.Parallel()

	expected := concatLines(
		"worker-5 spawned by worker-2:",
		"packagename.foo(...)",
		"\t/path/to/package/foo.go:37",
		"packagename.bar(...)",
		"\t/path/to/package/bar.go",
		"packagename.baz(...)",
		"\t<unknown file>",
		"<unknown function>",
		"\t/unknown/function/path.go:45",
		"worker-2 spawned by coordinator:",
		"<empty stack>",
		"",
	)

	l := &Lineage{
		Worker:  5,
		Spawner: 2,
		Frames: []Frame{
			{Function: "packagename.foo", File: "/path/to/package/foo.go", Line: 37},
			{Function: "packagename.bar", File: "/path/to/package/bar.go"},
			{Function: "packagename.baz", Line: 29}, // Line should have no effect if File is missing.
			{File: "/unknown/function/path.go", Line: 45},
		},
		Parent: &Lineage{Worker: 2, Spawner: Coordinator},
	}

	if got := l.String(); got != expected {
		t.Fail()
		t.Log(
			"--- BEGIN expected formatting ---\n",
			fmt.Sprintf("%q", expected),
			"\n--- END expected formatting. BEGIN actual formatting ---\n",
			fmt.Sprintf("%q", got),
		)
	}
}

func TestLineagePath(t *testing.T) {
	t.Parallel()

	var nilLineage *Lineage
	if nilLineage.Path() != nil || nilLineage.Depth() != 0 {
		t.Fatal("nil lineage should have no path")
	}

	l := &Lineage{
		Worker:  9,
		Spawner: 7,
		Parent: &Lineage{
			Worker:  7,
			Spawner: 3,
			Parent:  &Lineage{Worker: 3, Spawner: Coordinator},
		},
	}

	if l.Depth() != 3 {
		t.Fatalf("expected depth 3, got %d", l.Depth())
	}
	got := fmt.Sprint(l.Path())
	if got != "[coordinator worker-3 worker-7 worker-9]" {
		t.Fatalf("unexpected path %s", got)
	}
}

func matchFrame(t *testing.T, f Frame, function string) {
	if matched, _ := regexp.MatchString("^"+function+"$", f.Function); !matched {
		t.Fatalf("expected function matching %q, got %q", function, f.Function)
	}
	if matched, _ := regexp.MatchString(`.*/lineage_test\.go$`, f.File); !matched || f.Line == 0 {
		t.Fatalf("unexpected location %s:%d for %s", f.File, f.Line, f.Function)
	}
}

func TestLineageCapture(t *testing.T) {
	t.Parallel()

	parent := &Lineage{Worker: 1, Spawner: Coordinator}

	func1 := func() *Lineage {
		return captureLineage(2, 1, parent, 0)
	}
	func2 := func() *Lineage {
		return func1()
	}

	got := func2()
	if got.Worker != 2 || got.Spawner != 1 || got.Parent != parent {
		t.Fatalf("bad lineage identity: %+v", got)
	}
	if len(got.Frames) < 3 {
		t.Fatalf("expected at least 3 frames, got %d", len(got.Frames))
	}
	matchFrame(t, got.Frames[0], `.*/threadtree\.TestLineageCapture\.func1`)
	matchFrame(t, got.Frames[1], `.*/threadtree\.TestLineageCapture\.func2`)
	matchFrame(t, got.Frames[2], `.*/threadtree\.TestLineageCapture`)
}

func TestLineageSkipTooManyIsEmpty(t *testing.T) {
	t.Parallel()

	l := captureLineage(1, Coordinator, nil, 100000) // pick a big number to skip all frames
	if len(l.Frames) != 0 {
		t.Fatal("expected no frames, got", len(l.Frames))
	}
}
