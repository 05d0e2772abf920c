// Package id generates lexicographically sortable identifiers for streams
// and messages. Ids are ULIDs produced from a process-wide monotonic
// generator, so ids created within the same millisecond still sort in
// creation order.
package id
