// Package model provides the data structures shared by the pipeline package and its collaborators.
// It defines the step definitions, the pipeline document, the datasets produced by steps,
// the operation capability every step resolves to and the hook interface for pipeline options.
package model
