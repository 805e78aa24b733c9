package flowpath

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// TcFormula computes a time of concentration in hours from the flow path
// length and its elevation drop, both in metres.
type TcFormula interface {
	Name() string
	Hours(lengthM, dropM float64) (float64, error)
}

// Temez is 0.3 * (L_km / S^0.25)^0.76 with S = drop / length.
type Temez struct{}

// Name implements TcFormula.
func (Temez) Name() string { return "temez" }

// Hours implements TcFormula. A flat or zero-length path gives 0.
func (Temez) Hours(lengthM, dropM float64) (float64, error) {
	if lengthM <= 0 || dropM <= 0 {
		return 0, nil
	}
	slope := dropM / lengthM
	return 0.3 * math.Pow((lengthM/1000)/math.Pow(slope, 0.25), 0.76), nil
}

// California is 0.87 * (L^2 / (1000 * drop))^0.385.
type California struct{}

// Name implements TcFormula.
func (California) Name() string { return "california" }

// Hours implements TcFormula.
func (California) Hours(lengthM, dropM float64) (float64, error) {
	if dropM <= 0 {
		return 0, nil
	}
	return 0.87 * math.Pow(lengthM*lengthM/(1000*dropM), 0.385), nil
}

// Expression is a user formula over L (m), Lkm, H (drop, m) and S (slope).
type Expression struct {
	source  string
	program *vm.Program
}

func tcEnv(lengthM, dropM float64) map[string]any {
	slope := 0.0
	if lengthM > 0 {
		slope = dropM / lengthM
	}
	return map[string]any{
		"L":   lengthM,
		"Lkm": lengthM / 1000,
		"H":   dropM,
		"S":   slope,
	}
}

// CompileExpression compiles a user Tc formula.
func CompileExpression(source string) (*Expression, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("empty tc expression")
	}
	prg, err := expr.Compile(source, expr.Env(tcEnv(0, 0)), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("failed to compile tc expression %q: %w", source, err)
	}
	return &Expression{source: source, program: prg}, nil
}

// Name implements TcFormula.
func (e *Expression) Name() string { return e.source }

// Hours implements TcFormula. Non-finite or negative results are errors.
func (e *Expression) Hours(lengthM, dropM float64) (float64, error) {
	out, err := vm.Run(e.program, tcEnv(lengthM, dropM))
	if err != nil {
		return 0, fmt.Errorf("tc expression %q failed: %w", e.source, err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("tc expression %q returned %T", e.source, out)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("tc expression %q returned %v", e.source, v)
	}
	return v, nil
}

// ParseTcFormula resolves a formula name or compiles an expression.
func ParseTcFormula(s string) (TcFormula, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "temez":
		return Temez{}, nil
	case "california":
		return California{}, nil
	}
	return CompileExpression(s)
}
