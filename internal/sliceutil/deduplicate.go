// Package sliceutil provides generic slice helpers.
package sliceutil

// Deduplicate keeps the first item for each key, preserving order.
//
//	infos := []program.Info{{ID: "ai"}, {ID: "ai_product"}, {ID: "ai"}}
//	unique := sliceutil.Deduplicate(infos, func(p program.Info) string { return p.ID })
//	// [{ID: "ai"} {ID: "ai_product"}]
func Deduplicate[T any, K comparable](items []T, keyFunc func(T) K) []T {
	if len(items) == 0 {
		return items
	}

	seen := make(map[K]struct{}, len(items))
	result := make([]T, 0, len(items))
	for _, item := range items {
		key := keyFunc(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, item)
	}
	return result
}
