package callflow

import (
	"reflect"
	"sort"
)

// VariableContainer is a container for execution variables.
type VariableContainer interface {

	// SetVariable sets the value of a variable.
	SetVariable(key string, value any)

	// DeleteVariable deletes a variable.
	DeleteVariable(key string)

	// ListVariables returns a slice containing all variable names.
	ListVariables() []string

	// GetVariable returns the value of a variable.
	GetVariable(key string) (value any, exists bool)
}

// Patch represents a change to a variable.
type Patch struct {
	variable string
	value    any
	delete   bool
}

func (p Patch) Variable() string {
	return p.variable
}

func (p Patch) Value() any {
	return p.value
}

func (p Patch) Delete() bool {
	return p.delete
}

// SetPatch returns a patch assigning value to variable.
func SetPatch(variable string, value any) Patch {
	return Patch{variable: variable, value: value}
}

// DeletePatch returns a patch removing variable.
func DeletePatch(variable string) Patch {
	return Patch{variable: variable, delete: true}
}

// MergePatches returns set patches for every binding in vars, ordered by
// variable name.
func MergePatches(vars map[string]any) []Patch {
	patches := make([]Patch, 0, len(vars))
	for key, value := range vars {
		patches = append(patches, SetPatch(key, value))
	}
	sortPatches(patches)
	return patches
}

// GeneratePatches compares original and modified variable maps and returns
// patches for the differences, ordered by variable name.
func GeneratePatches(original, modified map[string]any) []Patch {
	var patches []Patch
	for key, currentValue := range modified {
		originalValue, exists := original[key]
		if !exists || !reflect.DeepEqual(originalValue, currentValue) {
			patches = append(patches, SetPatch(key, currentValue))
		}
	}
	for key := range original {
		if _, exists := modified[key]; !exists {
			patches = append(patches, DeletePatch(key))
		}
	}
	sortPatches(patches)
	return patches
}

// ApplyPatches applies a list of patches to a variable container.
func ApplyPatches(container VariableContainer, patches []Patch) {
	for _, patch := range patches {
		if patch.delete {
			container.DeleteVariable(patch.variable)
		} else {
			container.SetVariable(patch.variable, patch.value)
		}
	}
}

// splitPatches separates patches into assigned values and deleted names.
func splitPatches(patches []Patch) (map[string]any, []string) {
	var changes map[string]any
	var deleted []string
	for _, patch := range patches {
		if patch.delete {
			deleted = append(deleted, patch.variable)
			continue
		}
		if changes == nil {
			changes = map[string]any{}
		}
		changes[patch.variable] = patch.value
	}
	return changes, deleted
}

func sortPatches(patches []Patch) {
	sort.Slice(patches, func(i, j int) bool {
		return patches[i].variable < patches[j].variable
	})
}
