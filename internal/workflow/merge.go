package workflow

// MergeObjects deeply merges a sequence of generic mappings.
//
// The first occurrence of a key wins for scalar values; list values are
// concatenated and nested mappings are merged recursively.
func MergeObjects(objects ...map[string]any) map[string]any {
	output := make(map[string]any)
	for _, object := range objects {
		for key, value := range object {
			current, ok := output[key]
			if !ok {
				output[key] = value
				continue
			}
			currentList, currentIsList := current.([]any)
			valueList, valueIsList := value.([]any)
			if currentIsList && valueIsList {
				merged := make([]any, 0, len(currentList)+len(valueList))
				merged = append(merged, currentList...)
				merged = append(merged, valueList...)
				output[key] = merged
				continue
			}
			currentMap, currentIsMap := current.(map[string]any)
			valueMap, valueIsMap := value.(map[string]any)
			if currentIsMap && valueIsMap {
				output[key] = MergeObjects(currentMap, valueMap)
			}
		}
	}
	return output
}

// MergeEnv layers flat environment maps; later maps win on conflicts.
// Used for the workflow -> job -> step env chain.
func MergeEnv(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
