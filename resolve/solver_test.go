package resolve

import (
	"math"
	"testing"

	calcflow "github.com/calcflow/calcflow-go"
)

func mustSolver(t *testing.T, lines, targets, names []string, overrides map[string]calcflow.Mapping) *Solver {
	t.Helper()
	s, err := NewSolver(lines, targets, names, overrides)
	if err != nil {
		t.Fatalf("NewSolver failed: %v", err)
	}
	return s
}

func number(t *testing.T, results calcflow.Values, id string) float64 {
	t.Helper()
	n, ok := calcflow.ToNumber(results[id])
	if !ok {
		t.Fatalf("%s is not a number: %v", id, results[id])
	}
	return n
}

func TestSolveScalar(t *testing.T) {
	s := mustSolver(t, []string{"y = x + 1"}, []string{"y"}, []string{"x", "y"}, nil)
	results, err := s.Evaluate(calcflow.Values{"x": 2.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "y"); got != 3.0 {
		t.Fatalf("y = %v, want 3", got)
	}
}

func TestSolveScalarRightForm(t *testing.T) {
	s := mustSolver(t, []string{"x * 2 = y"}, []string{"y"}, []string{"x", "y"}, nil)
	results, err := s.Evaluate(calcflow.Values{"x": 3.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "y"); got != 6.0 {
		t.Fatalf("y = %v, want 6", got)
	}
}

func TestSolveVectorDestructure(t *testing.T) {
	s := mustSolver(t,
		[]string{"[a, b] = [x*2, x*3]"},
		[]string{"a", "b"},
		[]string{"a", "b", "x"},
		nil)
	results, err := s.Evaluate(calcflow.Values{"x": 5.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "a"); got != 10.0 {
		t.Fatalf("a = %v, want 10", got)
	}
	if got := number(t, results, "b"); got != 15.0 {
		t.Fatalf("b = %v, want 15", got)
	}
}

func TestSolveChainsAcrossPasses(t *testing.T) {
	// c depends on b, which is only settled later in the pass order, so
	// a second pass is required.
	s := mustSolver(t,
		[]string{"c = b + 1", "b = a + 1"},
		[]string{"b", "c"},
		[]string{"a", "b", "c"},
		nil)
	results, err := s.Evaluate(calcflow.Values{"a": 1.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "b"); got != 2.0 {
		t.Fatalf("b = %v, want 2", got)
	}
	if got := number(t, results, "c"); got != 3.0 {
		t.Fatalf("c = %v, want 3", got)
	}
}

func TestSolveCircularDegradesToUnresolved(t *testing.T) {
	s := mustSolver(t,
		[]string{"a = b", "b = a"},
		[]string{"a", "b"},
		[]string{"a", "b"},
		nil)
	results, err := s.Evaluate(calcflow.Values{})
	if err != nil {
		t.Fatalf("circular system should not error: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		n, ok := calcflow.ToNumber(results[id])
		if !ok || !math.IsNaN(n) {
			t.Fatalf("%s should be the unresolved sentinel, got %v", id, results[id])
		}
	}
}

func TestSolveOverrideWinsOverEquation(t *testing.T) {
	overrides := map[string]calcflow.Mapping{
		"y": func(scope calcflow.Values) interface{} { return 42.0 },
	}
	s := mustSolver(t, []string{"y = x + 1"}, []string{"y"}, []string{"x", "y"}, overrides)
	results, err := s.Evaluate(calcflow.Values{"x": 2.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "y"); got != 42.0 {
		t.Fatalf("override ignored: y = %v, want 42", got)
	}
}

func TestSolveFirstMatchWins(t *testing.T) {
	s := mustSolver(t,
		[]string{"y = 1", "y = 2"},
		[]string{"y"},
		[]string{"y"},
		nil)
	results, err := s.Evaluate(calcflow.Values{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "y"); got != 1.0 {
		t.Fatalf("first match should win: y = %v, want 1", got)
	}
}

func TestSolveMarkupAndUnsafeNames(t *testing.T) {
	s := mustSolver(t,
		[]string{"{y'} = {x'} * 2"},
		[]string{"y'"},
		[]string{"x'", "y'"},
		nil)
	results, err := s.Evaluate(calcflow.Values{"x'": 4.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "y'"); got != 8.0 {
		t.Fatalf("y' = %v, want 8", got)
	}
}

func TestSolveMathFunctions(t *testing.T) {
	s := mustSolver(t, []string{"y = sqrt(x) + abs(-1)"}, []string{"y"}, []string{"x", "y"}, nil)
	results, err := s.Evaluate(calcflow.Values{"x": 9.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "y"); got != 4.0 {
		t.Fatalf("y = %v, want 4", got)
	}
}

func TestSolveSignOfZero(t *testing.T) {
	s := mustSolver(t,
		[]string{"[p, n, z] = [sign(x), sign(-x), sign(x - x)]"},
		[]string{"p", "n", "z"},
		[]string{"p", "n", "z", "x"},
		nil)
	results, err := s.Evaluate(calcflow.Values{"x": 5.0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := number(t, results, "p"); got != 1.0 {
		t.Fatalf("sign(5) = %v, want 1", got)
	}
	if got := number(t, results, "n"); got != -1.0 {
		t.Fatalf("sign(-5) = %v, want -1", got)
	}
	if got := number(t, results, "z"); got != 0.0 {
		t.Fatalf("sign(0) = %v, want 0", got)
	}
}

func TestNewSolverConfigErrors(t *testing.T) {
	if _, err := NewSolver([]string{"y = 1"}, nil, []string{"y"}, nil); err == nil {
		t.Fatalf("no targets should be a config error")
	}
	if _, err := NewSolver(nil, []string{"y"}, []string{"y"}, nil); err == nil {
		t.Fatalf("no expressions and no overrides should be a config error")
	}
}
