package flow

// cloneContext returns a copy of data that shares no nested maps or slices
// with the source. Only map[string]any and []any are descended into; every
// other value is copied as-is.
func cloneContext(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneContext(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = cloneValue(item)
		}
		return items
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

func mergeInto(dst, src map[string]any) {
	for key, value := range src {
		dst[key] = cloneValue(value)
	}
}
