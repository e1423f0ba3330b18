// Package dataset builds a YOLO-style training dataset from the Galaxy Zoo
// export: a zip of JPEG images and a CSV of survey vote fractions.
//
// # Layout
//
// Materialize writes the following tree, replacing anything already there:
//
//	<root>/train/images/<id>.jpg
//	<root>/train/labels/<id>.txt
//	<root>/val/images/<id>.jpg
//	<root>/val/labels/<id>.txt
//	<root>/dataset.yaml
//
// Each label file holds one line, "<class> 0.5 0.5 0.6 0.6": the class from
// morphology.Classify and a fixed full-frame placeholder box. The box is not
// fitted to the galaxy.
//
// # Reproducibility
//
// The seed drives both the optional downsampling and the train/val split, so
// the same inputs and seed give the same membership and a byte-identical
// manifest.
//
// # Errors
//
// Fatal failures carry one of two kinds, testable with errors.Is:
//   - ErrSourceNotFound: the archive or label table is missing
//   - ErrRecordInvalid: the label table lacks a column, or a sampled record
//     lacks a value needed for classification
//
// Records whose image is absent from the archive are skipped and only show
// up as a lower processed count in Result.
package dataset
