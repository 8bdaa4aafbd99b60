// Package triage ranks emergency cases by severity. It is shared by the API
// server and the client SDK so both order patients the same way.
package triage

import (
	"sort"
	"strings"
)

// Level is the coarse severity assigned at intake.
type Level string

const (
	Low      Level = "low"
	Medium   Level = "medium"
	High     Level = "high"
	Critical Level = "critical"
)

// UnknownPriority ranks levels outside the known set behind every known one.
const UnknownPriority = 99

var priorities = map[Level]int{
	Critical: 1,
	High:     2,
	Medium:   3,
	Low:      4,
}

var displayStatuses = map[Level]string{
	Critical: "critical",
	High:     "moderate",
	Medium:   "stable",
	Low:      "minor",
}

// Levels lists the known levels from most to least urgent.
func Levels() []Level {
	return []Level{Critical, High, Medium, Low}
}

// Valid reports whether level is one of the known levels.
func Valid(level string) bool {
	_, ok := priorities[Level(level)]
	return ok
}

// Priority returns the sort rank of level; lower is more urgent.
func Priority(level string) int {
	if p, ok := priorities[Level(level)]; ok {
		return p
	}
	return UnknownPriority
}

// DisplayStatus maps level to the label shown on the triage board.
func DisplayStatus(level string) string {
	if s, ok := displayStatuses[Level(level)]; ok {
		return s
	}
	return "unknown"
}

// Sort returns a copy of items ordered by priority. Items of equal priority
// keep their input order. The input slice is not modified.
func Sort[T any](items []T, levelOf func(T) string) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return Priority(levelOf(out[i])) < Priority(levelOf(out[j]))
	})
	return out
}

// MatchName reports whether query is a case-insensitive substring of the
// patient's full name. An empty query matches everyone.
func MatchName(first, last, query string) bool {
	if query == "" {
		return true
	}
	full := strings.ToLower(first + " " + last)
	return strings.Contains(full, strings.ToLower(query))
}
