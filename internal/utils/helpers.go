package utils

// MakeMap builds a string map from alternating keys and values, the shape
// Sentry tags take. A trailing key without a value is dropped.
func MakeMap(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}
