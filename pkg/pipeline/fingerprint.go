package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

var errUnfingerprinted = errors.New("dependency has no fingerprint")

type stepIdentity struct {
	Step      string         `json:"step"`
	Kind      model.StepKind `json:"kind"`
	Operation string         `json:"operation"`
	Query     string         `json:"query"`
	Params    map[string]any `json:"params"`
	Inputs    map[string]any `json:"inputs"`
	Deps      []depIdentity  `json:"deps"`
}

type depIdentity struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Skipped     bool   `json:"skipped,omitempty"`
}

// cacheKey derives the shuttle key of a step from everything its output depends on.
// JSON objects are encoded with sorted keys, so equal identities give equal keys.
func cacheKey(step model.StepInfo, inputs map[string]any, deps []depIdentity) (string, error) {
	for _, dep := range deps {
		if !dep.Skipped && dep.Fingerprint == "" {
			return "", errors.Wrap(errUnfingerprinted, dep.Name)
		}
	}

	return hash(stepIdentity{
		Step:      step.Name,
		Kind:      step.Kind,
		Operation: step.Operation,
		Query:     step.Query,
		Params:    step.Params,
		Inputs:    inputs,
		Deps:      deps,
	})
}

// contentHash fingerprints the rows of a dataset.
func contentHash(rows []model.Row) (string, error) {
	return hash(rows)
}

func hash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "unable to encode")
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:]), nil
}
