package engine

import "regexp"

// skillFence matches a fenced code block flagged as a candidate skill:
//
//	```skill <name> <entryFuncName>
//	package main
//	...
//	```
//
// The two info-string tokens after "skill" name the skill and its entry
// function; the entry function's signature must be func(string) string
// per collab.EntrySignature.
var skillFence = regexp.MustCompile("(?s)```skill\\s+(\\S+)\\s+(\\S+)\\s*\\n(.*?)```")

// extractSkill reports the first candidate skill flagged in answer, if
// any.
func extractSkill(answer string) (name, entryName, source string, ok bool) {
	m := skillFence.FindStringSubmatch(answer)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}
