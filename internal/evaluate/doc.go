// Package evaluate runs a detector over a batch of galaxy images and
// reconciles its predictions with optional ground-truth labels.
//
// The detector is supplied by the caller through the Detector interface, so
// nothing here depends on a particular model runtime. Each image is sent to
// the detector exactly once, its annotated render is written to the output
// directory as "<stem>_pred.jpg", and the first detection returned becomes
// the image's top-1 prediction.
//
// Ground truth is read from "<stem>.txt" in the label directory, using the
// first whitespace-separated token as the class. Missing or unparseable
// label files simply leave the image unverifiable.
//
// A detector failure on one image never aborts the batch: the image is
// recorded without a prediction and processing continues. Cancelling the
// context stops further detector calls and returns the partial summary.
package evaluate
