package morphology

import (
	"errors"
	"fmt"
)

// Class is a morphology class index as written to label files.
type Class int

const (
	Elliptical Class = 0
	Spiral     Class = 1
	EdgeOn     Class = 2
	Artifact   Class = 3
)

// Classes lists every class in index order.
var Classes = []Class{Elliptical, Spiral, EdgeOn, Artifact}

var classNames = map[Class]string{
	Elliptical: "elliptical",
	Spiral:     "spiral",
	EdgeOn:     "edge-on",
	Artifact:   "artifact",
}

// String returns the stable class name, or the number for unknown classes.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%d", int(c))
}

// Valid reports whether c is one of the four defined classes.
func (c Class) Valid() bool {
	_, ok := classNames[c]
	return ok
}

// Names returns the class index to name table used in dataset manifests.
func Names() map[int]string {
	names := make(map[int]string, len(classNames))
	for c, name := range classNames {
		names[int(c)] = name
	}
	return names
}

// Survey column names consulted by the classifier.
const (
	FieldSmooth   = "Class1.1"
	FieldDisk     = "Class1.2"
	FieldArtifact = "Class1.3"
	FieldEdgeOn   = "Class2.1"
	FieldBar      = "Class3.1"
	FieldSpiral   = "Class4.1"
)

// RequiredFields lists every column a record must carry.
var RequiredFields = []string{
	FieldSmooth, FieldDisk, FieldArtifact, FieldEdgeOn, FieldBar, FieldSpiral,
}

// ErrMissingField is returned when a record lacks a required probability.
var ErrMissingField = errors.New("missing survey field")

// SurveyRecord is one row of the survey export.
type SurveyRecord struct {
	ID            string
	Probabilities map[string]float64
}

// Validate checks that every required field is present.
func (r SurveyRecord) Validate() error {
	for _, f := range RequiredFields {
		if _, ok := r.Probabilities[f]; !ok {
			return fmt.Errorf("record %s: %w: %s", r.ID, ErrMissingField, f)
		}
	}
	return nil
}

// votes is the validated view of a record that rule predicates read.
type votes struct {
	smooth, disk, artifact, edgeOn, bar, spiral float64
}

// Rule is one row of the decision table.
type Rule struct {
	Name  string
	Match func(v votes) bool
	Class Class
}

// Rules is the ordered decision table. The first matching rule wins.
var Rules = []Rule{
	{Name: "artifact", Class: Artifact, Match: func(v votes) bool { return v.artifact > 0.4 }},
	{Name: "edge-on", Class: EdgeOn, Match: func(v votes) bool { return v.edgeOn > 0.5 }},
	{Name: "featured-disk", Class: Spiral, Match: func(v votes) bool {
		return v.disk > 0.5 && (v.spiral > 0.4 || v.bar > 0.4)
	}},
	{Name: "smooth", Class: Elliptical, Match: func(v votes) bool { return v.smooth > 0.5 }},
}

// Classify returns the morphology class of a survey record.
//
// The result depends only on the record's probabilities. An error is returned
// only when a required field is missing; every complete record maps to one of
// the four classes.
func Classify(r SurveyRecord) (Class, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	p := r.Probabilities
	v := votes{
		smooth:   p[FieldSmooth],
		disk:     p[FieldDisk],
		artifact: p[FieldArtifact],
		edgeOn:   p[FieldEdgeOn],
		bar:      p[FieldBar],
		spiral:   p[FieldSpiral],
	}

	for _, rule := range Rules {
		if rule.Match(v) {
			return rule.Class, nil
		}
	}
	return fallback(v), nil
}

// fallback picks the strongest of smooth, disk and artifact. Candidates are
// in class order and only a strictly greater vote replaces the current best.
func fallback(v votes) Class {
	candidates := []struct {
		vote  float64
		class Class
	}{
		{v.smooth, Elliptical},
		{v.disk, Spiral},
		{v.artifact, Artifact},
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.vote > best.vote {
			best = c
		}
	}
	return best.class
}
