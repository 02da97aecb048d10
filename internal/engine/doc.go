// Package engine holds the built-in detector and classifier. They implement
// the same interfaces a model runtime would, so the pipeline runs end to end
// without model files.
package engine
