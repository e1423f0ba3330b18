// Package detector runs a YOLOv8 galaxy model exported to ONNX through
// onnxruntime.
//
// A Detector owns one onnxruntime session and its input/output tensors. It
// is created once by the program, shared read-only by the front-ends and
// closed by its owner; Predict calls are serialized because the tensors are
// reused between runs.
//
// The model is expected to take a single "images" input of shape
// (1, 3, size, size) with RGB values scaled to [0,1], and to produce a single
// "output0" of shape (1, 4+classes, anchors) where each anchor column holds
// the box centre, width and height in input pixels followed by one score per
// class.
package detector
