// Package logtail reads the tail of the fleetdash sync log.
//
// Component loggers prefix their lines with a tag such as "[cache]" or
// "[poller]"; Read can keep only one component's lines. It scans the file
// once through a ring buffer of the requested size, so large rotated logs
// are never held in memory.
package logtail
