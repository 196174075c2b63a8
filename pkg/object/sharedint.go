package object

// SharedIntegers are the 0..9999 immutable singletons (§3 invariant: they
// MUST NOT be encoding-converted or mutated, and do not obey refcount
// deallocation rules).
const SharedIntCount = 10000

var sharedIntegers [SharedIntCount]*Value

func init() {
	for i := range sharedIntegers {
		sharedIntegers[i] = &Value{
			Type:     TypeString,
			Encoding: EncInt,
			Refcount: 1,
			Str:      &StringPayload{i: int64(i)},
			shared:   true,
		}
	}
}

// SharedInt returns the interned singleton for n, if n is in [0, 10000).
func SharedInt(n int64) (*Value, bool) {
	if n >= 0 && n < SharedIntCount {
		return sharedIntegers[n], true
	}
	return nil, false
}
