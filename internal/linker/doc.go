// Package linker applies live-photo link and unlink mutations against the
// server API, one sequential call per asset. Failures never abort the batch;
// they are collected, flushed through the audit recorder, and surfaced as a
// PartialFailureError once every item has been processed.
package linker
