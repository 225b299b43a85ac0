// Package location models the resource side of Roomkit: rooms owned by a
// user, zones inside rooms, and the cleaning schedule that decides when a
// zone is due.
//
// Deletes are soft; a deleted row keeps its history but disappears from
// every listing. Due computation is derived, never stored: next due is
// the last cleaning plus the zone's frequency interval, and a zone that
// has never been cleaned is always due.
package location
