package ml

import (
	"math"
	"testing"
)

func TestAccuracy(t *testing.T) {
	predicted := []string{"a", "b", "a", "b"}
	truth := []string{"a", "b", "b", "b"}
	if got := Accuracy(predicted, truth); got != 0.75 {
		t.Errorf("accuracy = %v, want 0.75", got)
	}
	if got := Accuracy(nil, nil); got != 0 {
		t.Errorf("empty accuracy = %v, want 0", got)
	}
}

func TestEvaluatePerfect(t *testing.T) {
	labels := []string{"a", "a", "b", "b"}
	eval := Evaluate(labels, labels, []string{"a", "b"})

	if eval.TestAccuracy != 1 || eval.PrecisionMacro != 1 || eval.RecallMacro != 1 || eval.F1Macro != 1 {
		t.Errorf("perfect prediction should score 1 across the board: %+v", eval)
	}
	if eval.ConfusionMatrix[0][0] != 2 || eval.ConfusionMatrix[1][1] != 2 {
		t.Errorf("confusion matrix diagonal wrong: %v", eval.ConfusionMatrix)
	}
	if eval.ConfusionMatrix[0][1] != 0 || eval.ConfusionMatrix[1][0] != 0 {
		t.Errorf("confusion matrix off-diagonal wrong: %v", eval.ConfusionMatrix)
	}
}

func TestEvaluateMixed(t *testing.T) {
	truth := []string{"a", "a", "b", "b"}
	predicted := []string{"a", "b", "b", "b"}
	eval := Evaluate(predicted, truth, []string{"a", "b"})

	if eval.TestAccuracy != 0.75 {
		t.Errorf("accuracy = %v, want 0.75", eval.TestAccuracy)
	}

	// a: tp=1 fp=0 fn=1; b: tp=2 fp=1 fn=0.
	wantPrecisionMacro := (1.0 + 2.0/3.0) / 2
	wantRecallMacro := (0.5 + 1.0) / 2
	if math.Abs(eval.PrecisionMacro-wantPrecisionMacro) > 1e-9 {
		t.Errorf("precision macro = %v, want %v", eval.PrecisionMacro, wantPrecisionMacro)
	}
	if math.Abs(eval.RecallMacro-wantRecallMacro) > 1e-9 {
		t.Errorf("recall macro = %v, want %v", eval.RecallMacro, wantRecallMacro)
	}

	if eval.ConfusionMatrix[0][1] != 1 {
		t.Errorf("expected one a-as-b confusion, got %v", eval.ConfusionMatrix)
	}
}

func TestEvaluateZeroDivision(t *testing.T) {
	// Class c never appears in truth or prediction; its metrics must be 0,
	// not NaN.
	truth := []string{"a", "b"}
	predicted := []string{"a", "b"}
	eval := Evaluate(predicted, truth, []string{"a", "b", "c"})

	if math.IsNaN(eval.PrecisionMacro) || math.IsNaN(eval.RecallMacro) || math.IsNaN(eval.F1Macro) {
		t.Errorf("zero-division leaked NaN: %+v", eval)
	}
	wantMacro := 2.0 / 3.0
	if math.Abs(eval.PrecisionMacro-wantMacro) > 1e-9 {
		t.Errorf("precision macro = %v, want %v", eval.PrecisionMacro, wantMacro)
	}
}
