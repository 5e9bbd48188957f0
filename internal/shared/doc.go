// Package shared holds helpers used by more than one package of the
// estimates module that do not belong to any single layer.
//
// The testutil subpackage provides a buffered slog handler so tests can
// assert on structured log output:
//
//	logger, logs := testutil.NewTestLogger(t)
//	loader := estimates.NewLoader(..., estimates.WithLogger(logger))
//	testutil.AssertLogContains(t, logs, slog.LevelInfo, "validated event table")
package shared
