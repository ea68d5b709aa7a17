package engine

import "github.com/dyluth/porta/pkg/blackboard"

// JoinOn reports whether every given readiness flag is set on the snapshot.
// It is the canonical join primitive for stages with multiple upstream
// dependencies: a body invoked before all of its true preconditions hold
// should return an empty patch.
func JoinOn(snap *blackboard.Blackboard, flags ...blackboard.Field) bool {
	for _, f := range flags {
		if !snap.Flag(f) {
			return false
		}
	}
	return true
}

// Gate combines the two checks every stage body performs on entry under
// at-least-once delivery: it returns true only when the stage has not
// already committed (done is unset) and every upstream flag it depends on
// is set. Bodies that receive false must return an empty patch.
func Gate(snap *blackboard.Blackboard, done blackboard.Field, upstream ...blackboard.Field) bool {
	if snap.Flag(done) {
		return false
	}
	return JoinOn(snap, upstream...)
}
