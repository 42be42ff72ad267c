// Package progress carries scrape progress events from the enumerator to
// pluggable sinks. Events are batched on a background goroutine so emitting
// never blocks a probe loop.
package progress
