package feed

// MergeOverlay copies into derived every key of original that derived does
// not already have, first at entity level and then at alert level. Entities
// are matched by "id"; entities of original without a match are ignored.
// Keys already present in derived are never overwritten.
func MergeOverlay(derived, original map[string]any) {
	byID := make(map[string]map[string]any)
	for _, e := range Entities(original) {
		id, ok := e["id"].(string)
		if !ok {
			continue
		}
		if _, dup := byID[id]; !dup {
			byID[id] = e
		}
	}

	for _, entity := range Entities(derived) {
		id, _ := entity["id"].(string)
		orig, ok := byID[id]
		if !ok {
			continue
		}
		fill(entity, orig)

		alert, ok := entity["alert"].(map[string]any)
		if !ok {
			continue
		}
		origAlert, ok := orig["alert"].(map[string]any)
		if !ok {
			continue
		}
		fill(alert, origAlert)
	}
}

func fill(dst, src map[string]any) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

// Entities returns the entity objects of a raw feed tree. Non-object
// entries are skipped.
func Entities(tree map[string]any) []map[string]any {
	list, _ := tree["entity"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
