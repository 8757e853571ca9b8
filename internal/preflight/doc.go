// Package preflight provides readiness checks for the filesystem paths,
// credentials, and programs a worker run depends on.
//
// These checks run in two contexts:
//   - `docintake run` calls RunAll before spawning the worker and refuses to
//     start when a required check fails.
//   - `docintake check` prints every result, including optional ones.
package preflight
