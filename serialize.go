package densitytree

import (
	"fmt"
	"math/big"

	"gopkg.in/yaml.v3"
)

// Serialized histograms enumerate (label, value) pairs together with
// the root box and the split rule tag. The tag matters: the cell of a
// label depends on the rule, so a histogram read back under the wrong
// rule would describe different boxes.

type histogramDoc struct {
	Rule   string         `yaml:"rule"`
	Low    []float64      `yaml:"low"`
	High   []float64      `yaml:"high"`
	Total  uint64         `yaml:"total"`
	Leaves []leafCountDoc `yaml:"leaves"`
}

type leafCountDoc struct {
	Label string `yaml:"label"`
	Count uint64 `yaml:"count"`
}

type densityDoc struct {
	Rule   string           `yaml:"rule"`
	Low    []float64        `yaml:"low"`
	High   []float64        `yaml:"high"`
	Leaves []leafDensityDoc `yaml:"leaves"`
}

type leafDensityDoc struct {
	Label   string  `yaml:"label"`
	Density float64 `yaml:"density"`
	Volume  float64 `yaml:"volume"`
}

// EncodeHistogram renders the histogram as a YAML document.
func EncodeHistogram(h *Histogram) ([]byte, error) {
	doc := histogramDoc{
		Rule:  h.tree.rule.String(),
		Low:   h.tree.root.Low,
		High:  h.tree.root.High,
		Total: h.total,
	}
	for i, leaf := range h.counts.trunc.leaves {
		doc.Leaves = append(doc.Leaves, leafCountDoc{
			Label: leaf.x.String(),
			Count: h.counts.vals[i],
		})
	}
	return yaml.Marshal(doc)
}

// DecodeHistogram reads a histogram back from its YAML document,
// re-validating the full input contract.
func DecodeHistogram(data []byte) (*Histogram, error) {
	var doc histogramDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding histogram: %w", err)
	}
	rule, err := parseSplitRule(doc.Rule)
	if err != nil {
		return nil, err
	}
	root, err := NewRectangle(doc.Low, doc.High)
	if err != nil {
		return nil, err
	}
	labels := make([]NodeLabel, len(doc.Leaves))
	counts := make([]uint64, len(doc.Leaves))
	for i, l := range doc.Leaves {
		lab, err := parseLabel(l.Label)
		if err != nil {
			return nil, err
		}
		labels[i] = lab
		counts[i] = l.Count
	}
	return NewHistogramFromCounts(NewSpatialTree(root, rule), doc.Total, labels, counts)
}

// EncodeDensity renders the density histogram as a YAML document.
func EncodeDensity(d *DensityHistogram) ([]byte, error) {
	doc := densityDoc{
		Rule: d.tree.rule.String(),
		Low:  d.tree.root.Low,
		High: d.tree.root.High,
	}
	for i, leaf := range d.dens.trunc.leaves {
		doc.Leaves = append(doc.Leaves, leafDensityDoc{
			Label:   leaf.x.String(),
			Density: d.dens.vals[i].Density,
			Volume:  d.dens.vals[i].Volume,
		})
	}
	return yaml.Marshal(doc)
}

// DecodeDensity reads a density histogram back from its YAML document.
func DecodeDensity(data []byte) (*DensityHistogram, error) {
	var doc densityDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding density histogram: %w", err)
	}
	rule, err := parseSplitRule(doc.Rule)
	if err != nil {
		return nil, err
	}
	root, err := NewRectangle(doc.Low, doc.High)
	if err != nil {
		return nil, err
	}
	labels := make([]NodeLabel, len(doc.Leaves))
	vals := make([]DensityValue, len(doc.Leaves))
	for i, l := range doc.Leaves {
		lab, err := parseLabel(l.Label)
		if err != nil {
			return nil, err
		}
		labels[i] = lab
		vals[i] = DensityValue{Density: l.Density, Volume: l.Volume}
	}
	trunc, err := NewTruncation(labels)
	if err != nil {
		return nil, err
	}
	for i := range labels {
		if !trunc.leaves[i].Equal(labels[i]) {
			return nil, fmt.Errorf("%w: labels not in canonical order at index %d", ErrDomain, i)
		}
	}
	lm, err := NewLeafMap(trunc, vals)
	if err != nil {
		return nil, err
	}
	return NewDensityHistogram(NewSpatialTree(root, rule), lm)
}

// parseLabel reads a decimal label produced by encoding.
func parseLabel(s string) (NodeLabel, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok || x.Sign() < 1 {
		return NodeLabel{}, fmt.Errorf("%w: malformed node label %q", ErrDomain, s)
	}
	return NodeLabel{x: x}, nil
}
