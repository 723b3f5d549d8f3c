package state

import "strings"

// PlayerIDFromPath extracts the player id from a players.<id>.* path.
// Returns false for paths outside the players subtree.
func PlayerIDFromPath(path string) (string, bool) {
	segments := strings.Split(path, ".")
	if len(segments) < 2 || segments[0] != "players" || segments[1] == "" {
		return "", false
	}
	return segments[1], true
}

// IsPositionPath reports whether path is a movement-causing write target,
// i.e. players.<id>.position, and returns the player id.
func IsPositionPath(path string) (string, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 3 && segments[0] == "players" && segments[1] != "" && segments[2] == "position" {
		return segments[1], true
	}
	return "", false
}

// PlayerFieldPath builds the canonical path of a player field.
func PlayerFieldPath(id, field string) string {
	return "players." + id + "." + field
}
