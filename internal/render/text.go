package render

import "github.com/hashmap-kz/pgreplmon/internal/snapshot"

const (
	TextOK       = "OK"
	TextNotReady = "Not Ready"
	TextNotAlive = "Not Alive"
	TextNotFound = "Not Found"
)

// Ready reports whether both primary and standby were reachable in s.
func Ready(s *snapshot.Snapshot) (bool, string) {
	if s == nil || !s.Primary.Reachable || !s.Standby.Reachable {
		return false, TextNotReady
	}
	return true, TextOK
}

// Live reports whether the primary was reachable in s.
func Live(s *snapshot.Snapshot) (bool, string) {
	if s == nil || !s.Primary.Reachable {
		return false, TextNotAlive
	}
	return true, TextOK
}
