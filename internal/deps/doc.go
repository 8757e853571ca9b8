// Package deps reports whether the external programs a worker run needs are
// present: the worker command itself and, for interpreter commands such as
// python3, the script handed to it.
package deps
