// Package textutil provides filename normalization and sanitization used by
// the content tree manager.
//
// New names are NFC-normalized so a folder typed on one platform matches the
// same folder listed on another.
package textutil
