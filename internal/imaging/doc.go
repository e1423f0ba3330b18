// Package imaging provides the image plumbing shared by the detector and the
// front-ends: decoding, annotated renders, previews and remote downloads.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with the origin at the
// top-left corner. Boxes use image.Rectangle semantics: Min is inclusive and
// Max is exclusive.
//
// # Annotated Renders
//
// Annotate draws each detection box as a 2-pixel outline in its class colour
// and writes a small "class:confidence" tag above it using a built-in 3x5
// pixel font. Class colours come from a fixed golden-angle walk around the
// HSV hue circle, so a class always has the same colour across renders.
//
// # Error Handling
//
// Functions return errors for:
//   - File I/O errors during decoding or saving
//   - Unsupported or corrupt image data
//   - Non-200 responses and oversized bodies when downloading
package imaging
