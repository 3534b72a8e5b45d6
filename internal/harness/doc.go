// Package harness runs reconciliation scenarios.
//
// A scenario is a YAML file describing a roster, the vote log, an optional
// pre-existing optimistic cache and a list of steps (loads, mutations, vote
// casts, revalidation passes and injected store failures). Each scenario runs
// against a fresh SQLite store in a temporary directory with a fixed clock,
// so its final view is deterministic and can be compared with a golden file.
//
// Example scenario:
//
//	name: one_vote_of_three
//	description: a vote in the log upgrades its student to voted
//	course: 1ro Bach A
//	students:
//	  - {name: Ana, studentId: 1001, course: 1ro Bach A}
//	  - {name: Bruno, studentId: 1002, course: 1ro Bach A}
//	votes:
//	  - {student: "1002", at: 2026-05-04T09:15:00Z}
//	steps:
//	  - op: load
//	expect:
//	  statuses: {"1001": pending, "1002": voted}
package harness
