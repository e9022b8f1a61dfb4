package attrs

// ExtractString extracts a string value from a key-value attribute slice.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Returns empty string if the key is not found or the value is not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok {
			continue
		}
		if k == key {
			if v, ok := attrs[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}

// First returns the value of the first key in keys that has a non-empty
// string value in the attribute slice. Used to pick a subject for decision
// logs out of whichever identifier the caller supplied.
func First(attrs []any, keys ...string) string {
	for _, key := range keys {
		if v := ExtractString(attrs, key); v != "" {
			return v
		}
	}
	return ""
}
