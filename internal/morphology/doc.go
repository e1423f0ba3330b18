// Package morphology assigns a single morphology class to a galaxy from the
// crowd-sourced vote fractions of the Galaxy Zoo survey.
//
// # Classes
//
// Four classes are defined and their integer values are stable; they appear
// verbatim in label files and in the dataset manifest:
//
//	0 elliptical
//	1 spiral
//	2 edge-on
//	3 artifact
//
// # Decision Table
//
// Classify walks Rules top-down and returns the class of the first rule whose
// predicate holds. The order encodes domain priority: an object that looks
// like a star or artifact is never kept as a galaxy, an edge-on disk is never
// called a spiral, and so on. When no rule matches, the class with the highest
// vote among smooth, disk and artifact wins, ties going to the lowest class
// value.
//
// # Survey Fields
//
// Only six survey columns are consulted (see the Field constants). A record
// lacking any of them is rejected with ErrMissingField; missing votes are
// never read as zero.
package morphology
