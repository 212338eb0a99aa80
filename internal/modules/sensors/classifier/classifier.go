// Package classifier evaluates the pre-trained safety model.
//
// The model is a decision tree or random forest exported to JSON in the array
// layout of scikit-learn's tree_ attribute: for node i, children_left[i] and
// children_right[i] are child indices (-1 at a leaf), feature[i] and
// threshold[i] define the split x[feature] <= threshold, and value[i] holds the
// per-class sample weights. The label encoder maps class indices to labels.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"minewatch-server/internal/modules/sensors/types"
)

// FeatureNames is the fixed input order of the model.
var FeatureNames = []string{"getaran", "suhu", "tekanan", "kelembapan"}

const leaf = -1

type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type Model struct {
	Kind         string   `json:"kind"`
	NFeatures    int      `json:"n_features"`
	FeatureNames []string `json:"feature_names,omitempty"`
	NClasses     int      `json:"n_classes"`
	Trees        []Tree   `json:"trees"`
}

type LabelEncoder struct {
	Classes []string `json:"classes"`
}

type Classifier struct {
	model   Model
	encoder LabelEncoder
}

// Load reads both artifacts. Any failure here should stop startup.
func Load(modelPath, encoderPath string) (*Classifier, error) {
	var model Model
	if err := readJSON(modelPath, &model); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	var enc LabelEncoder
	if err := readJSON(encoderPath, &enc); err != nil {
		return nil, fmt.Errorf("load label encoder: %w", err)
	}
	return New(model, enc)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// New validates the artifacts against each other and the fixed feature order.
func New(model Model, enc LabelEncoder) (*Classifier, error) {
	switch model.Kind {
	case "decision_tree", "random_forest":
	default:
		return nil, fmt.Errorf("unsupported model kind %q", model.Kind)
	}
	if model.NFeatures != len(FeatureNames) {
		return nil, fmt.Errorf("model expects %d features, inputs have %d", model.NFeatures, len(FeatureNames))
	}
	if len(model.FeatureNames) > 0 {
		for i, name := range FeatureNames {
			if i >= len(model.FeatureNames) || model.FeatureNames[i] != name {
				return nil, fmt.Errorf("model feature order %v, want %v", model.FeatureNames, FeatureNames)
			}
		}
	}
	if model.NClasses <= 0 {
		return nil, errors.New("model has no classes")
	}
	if len(enc.Classes) == 0 {
		return nil, errors.New("label encoder has no classes")
	}
	if model.NClasses > len(enc.Classes) {
		return nil, fmt.Errorf("model has %d classes, label encoder has %d", model.NClasses, len(enc.Classes))
	}
	if len(model.Trees) == 0 {
		return nil, errors.New("model has no trees")
	}
	if model.Kind == "decision_tree" && len(model.Trees) != 1 {
		return nil, fmt.Errorf("decision_tree model has %d trees", len(model.Trees))
	}
	for i, t := range model.Trees {
		if err := t.validate(model.NFeatures, model.NClasses); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &Classifier{model: model, encoder: enc}, nil
}

func (t Tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return errors.New("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf || r == leaf {
			if l != r {
				return fmt.Errorf("node %d has a single child", i)
			}
			if len(t.Value[i]) != nClasses {
				return fmt.Errorf("leaf %d has %d class values, want %d", i, len(t.Value[i]), nClasses)
			}
			continue
		}
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has child out of range", i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d", i, t.Feature[i])
		}
	}
	return nil
}

// Classes is the encoder vocabulary.
func (c *Classifier) Classes() []string {
	out := make([]string, len(c.encoder.Classes))
	copy(out, c.encoder.Classes)
	return out
}

// Predict classifies one reading and decodes the class through the label encoder.
func (c *Classifier) Predict(v types.Values) (string, error) {
	idx, err := c.PredictIndex(v.Features())
	if err != nil {
		return "", err
	}
	if idx >= len(c.encoder.Classes) {
		return "", fmt.Errorf("predicted class %d outside label encoder vocabulary (%d classes)", idx, len(c.encoder.Classes))
	}
	return c.encoder.Classes[idx], nil
}

// PredictIndex averages the normalized leaf distributions of every tree and
// returns the index of the largest; the first maximum wins ties.
func (c *Classifier) PredictIndex(x []float64) (int, error) {
	if len(x) != c.model.NFeatures {
		return 0, fmt.Errorf("got %d features, model expects %d", len(x), c.model.NFeatures)
	}
	proba := make([]float64, c.model.NClasses)
	for _, t := range c.model.Trees {
		dist := t.Value[t.leafFor(x)]
		var sum float64
		for _, w := range dist {
			sum += w
		}
		if sum == 0 {
			continue
		}
		for k, w := range dist {
			proba[k] += w / sum
		}
	}
	best := 0
	for k := 1; k < len(proba); k++ {
		if proba[k] > proba[best] {
			best = k
		}
	}
	return best, nil
}

// leafFor walks from the root; validate guarantees children have larger
// indices, so the walk terminates.
func (t Tree) leafFor(x []float64) int {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return node
}
