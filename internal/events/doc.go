// Package events turns raw worker output into typed events.
//
// Workers write newline-delimited records. A record that is a JSON object
// with a recognized "type" field becomes a Progress, Result, Error, or
// Complete event; an object with a missing or unrecognized type becomes
// Unknown; everything else is a Log line. A rolling scan over recent Log
// lines recognizes summary phrases such as "Processing complete!" so workers
// that never emit a structured completion are still seen to finish.
package events
