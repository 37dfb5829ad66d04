package orchestrator

import "strconv"

// CartoonCutsCustom is the selector value meaning "use the custom count".
const CartoonCutsCustom = "custom"

// GetCartoonCutsNumber resolves a cartoon panel-count selector. Non-custom
// selectors are numeric strings and are returned unchanged; the custom
// selector returns the provided custom value as-is. No clamping happens
// here: the options surface clamps custom input to [2,12] at input time.
func GetCartoonCutsNumber(selector string, customValue int) int {
	if selector == CartoonCutsCustom {
		return customValue
	}
	if n, err := strconv.Atoi(selector); err == nil {
		return n
	}
	return customValue
}
