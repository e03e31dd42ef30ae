package ml

import "testing"

func TestSearchSpaceDefinedForAllTypes(t *testing.T) {
	for _, modelType := range ModelTypes() {
		if len(SearchSpace(modelType)) == 0 {
			t.Errorf("no search space for %s", modelType)
		}
	}
	if SearchSpace("nonsense") != nil {
		t.Error("unknown type should have no search space")
	}
}

func TestEnumerateGrid(t *testing.T) {
	space := map[string][]interface{}{
		"C":     {0.1, 1.0},
		"gamma": {0.0, 0.01, 0.1},
	}
	candidates := enumerateGrid([]string{"C", "gamma"}, space)
	if len(candidates) != 6 {
		t.Fatalf("got %d candidates, want 6", len(candidates))
	}
	seen := map[[2]float64]bool{}
	for _, c := range candidates {
		seen[[2]float64{asFloat(c["C"]), asFloat(c["gamma"])}] = true
	}
	if len(seen) != 6 {
		t.Errorf("candidates are not distinct: %v", candidates)
	}
}

func TestApplyParams(t *testing.T) {
	base := DefaultOptions()

	opts, err := applyParams(TypeSVM, base, map[string]interface{}{"C": 10.0, "gamma": 0.01})
	if err != nil {
		t.Fatalf("applyParams: %v", err)
	}
	if opts.C != 10 || opts.Gamma != 0.01 {
		t.Errorf("svm params not applied: %+v", opts)
	}

	// n_estimators means tree count for forests and round count for boosting.
	opts, err = applyParams(TypeRandomForest, base, map[string]interface{}{"n_estimators": 200})
	if err != nil {
		t.Fatalf("applyParams: %v", err)
	}
	if opts.NumTrees != 200 || opts.NumEstimators != base.NumEstimators {
		t.Errorf("forest n_estimators misapplied: %+v", opts)
	}

	opts, err = applyParams(TypeAdaBoost, base, map[string]interface{}{"n_estimators": 25, "learning_rate": 0.5})
	if err != nil {
		t.Fatalf("applyParams: %v", err)
	}
	if opts.NumEstimators != 25 || opts.BoostLearningRate != 0.5 {
		t.Errorf("adaboost params misapplied: %+v", opts)
	}

	if _, err := applyParams(TypeSVM, base, map[string]interface{}{"kernel": "poly"}); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestSearchRandomRespectsBudget(t *testing.T) {
	X, labels := twoClassBlobs(t)
	opts := testOptions()

	best, result, err := Search(TypeAdaBoost, SearchRandom, opts, X, labels, 2, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result == nil {
		t.Fatal("expected a search result")
	}
	if result.Method != SearchRandom {
		t.Errorf("method = %s, want random", result.Method)
	}
	if result.Candidates != 3 {
		t.Errorf("candidates = %d, want 3", result.Candidates)
	}
	if result.BestScore < 0 || result.BestScore > 1 {
		t.Errorf("best score %v outside [0,1]", result.BestScore)
	}
	if len(result.BestParams) == 0 {
		t.Error("best params missing")
	}
	if best.Seed != opts.Seed {
		t.Errorf("search must not change untouched options")
	}
}

func TestSearchUnknownMethod(t *testing.T) {
	X, labels := twoClassBlobs(t)
	if _, _, err := Search(TypeSVM, "bayesian", testOptions(), X, labels, 2, 1); err == nil {
		t.Fatal("expected error for unknown search method")
	}
}

func TestCrossValidate(t *testing.T) {
	X, labels := twoClassBlobs(t)

	result, err := CrossValidate(TypeRandomForest, testOptions(), X, labels, 4)
	if err != nil {
		t.Fatalf("CrossValidate: %v", err)
	}
	if result.Folds != 4 {
		t.Errorf("folds = %d, want 4", result.Folds)
	}
	if len(result.Scores) != 4 {
		t.Fatalf("got %d scores, want 4", len(result.Scores))
	}
	for _, score := range result.Scores {
		if score < 0 || score > 1 {
			t.Errorf("score %v outside [0,1]", score)
		}
	}
	if result.Mean < 0.5 {
		t.Errorf("mean CV accuracy %v suspiciously low on separable blobs", result.Mean)
	}
}
