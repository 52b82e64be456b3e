// Package pipeline loads and runs data-integration pipelines.
//
// A pipeline is a directed acyclic graph of steps. Source steps retrieve a dataset through an adapter,
// transform and aggregate steps derive a dataset from the datasets of their dependencies. Load validates
// the declaration and resolves every operation up front, so a pipeline that loads can only fail at run
// time because of its operations.
//
// The Loom runs a loaded pipeline either sequentially, in topological order, or in parallel on a fixed
// pool of workers fed by a ready queue. Both modes produce the same outputs. Datasets of steps with an
// enabled cache policy are stored in a shuttle under a fingerprint of everything they depend on, so
// running the same pipeline twice with the same inputs only invokes the operations whose entries expired.
//
// A run stops on the first failure of a non optional step and reports it as a *PipelineError. In parallel
// mode the steps already running are allowed to finish and their failures are attached to the error.
package pipeline
