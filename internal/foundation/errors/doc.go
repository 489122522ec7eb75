// Package errors provides the classified error primitives used across assetpipe.
//
// Every failure that can end a build is expressed as a ClassifiedError carrying a
// category, a severity and a retry strategy, plus structured context such as the
// offending module path or output path. Fatal severities abort the build; warnings
// are recorded on the build report and the build continues.
//
// Example usage:
//
//	err := errors.TransformFailure("src/index.js", cause).
//		WithContext("rule", "scripts").
//		Build()
package errors
