package rdb

import "github.com/cuemby/burrow/pkg/config"

// AnyTriggers reports whether any `(seconds, changes)` save rule (§4.6, §6)
// fires given the current dirty counter and seconds elapsed since the last
// successful save.
func AnyTriggers(rules []config.SaveRule, dirty int64, secondsSinceSave int64) bool {
	for _, r := range rules {
		if dirty >= int64(r.Changes) && secondsSinceSave > int64(r.Seconds) {
			return true
		}
	}
	return false
}
