// Package workspace owns the filesystem side of a build's output.
//
// A Stage is a sibling directory (<output>_stage) seeded with a copy of the
// current output directory. Cleanup and every emitter write happen there. Only
// a build that reaches Done promotes the stage into place; a failed or
// canceled build aborts it and leaves the output directory untouched.
//
// Lock provides cross-run exclusion: <output>.lock is created exclusively and
// a second build on the same output fails fast.
package workspace
