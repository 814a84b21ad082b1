package model

import "fmt"

// ServiceKey identifies every cached entity: a (namespace, name) pair.
type ServiceKey struct {
	Namespace string
	Name      string
}

func (k ServiceKey) String() string {
	return fmt.Sprintf("%s#%s", k.Namespace, k.Name)
}

// Valid reports whether both fields are non-empty, per the data model invariant.
func (k ServiceKey) Valid() bool {
	return k.Namespace != "" && k.Name != ""
}

// Less gives ServiceKey a total order so it can key sorted structures
// (e.g. deterministic iteration for tests).
func (k ServiceKey) Less(o ServiceKey) bool {
	if k.Namespace != o.Namespace {
		return k.Namespace < o.Namespace
	}
	return k.Name < o.Name
}
