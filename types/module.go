package types

// ModuleDescriptor identifies one ordered unit of test logic belonging to a
// service. Descriptors are created by the discoverer at run start and are
// immutable afterwards. The total order of modules within a service is
// (Ordinal, Name).
type ModuleDescriptor struct {
	Service string
	Ordinal int
	Name    string // full module name including the ordinal prefix, e.g. "01_create_user"
}

// ID returns a stable identifier for the module, unique within a run.
func (m ModuleDescriptor) ID() string {
	return m.Service + "/" + m.Name
}

// Less orders descriptors by ordinal ascending, ties broken lexically by name.
func (m ModuleDescriptor) Less(other ModuleDescriptor) bool {
	if m.Ordinal != other.Ordinal {
		return m.Ordinal < other.Ordinal
	}
	return m.Name < other.Name
}
