package types

// EdgeKind names why one entity depends on another.
type EdgeKind int

const (
	// EdgeIncludes is a template or partial pulling in a partial.
	EdgeIncludes EdgeKind = iota
	// EdgeExtends is content selecting a layout, or a template extending another.
	EdgeExtends
	// EdgeUsesData is a template reading a data binding.
	EdgeUsesData
	// EdgeBundledIn is a bundle depending on a member stylesheet or an
	// embedded stylesheet.
	EdgeBundledIn
	// EdgeLists is a listing page depending on the pages it lists.
	EdgeLists
)

// String returns the string representation of the edge kind
func (k EdgeKind) String() string {
	switch k {
	case EdgeIncludes:
		return "includes"
	case EdgeExtends:
		return "extends"
	case EdgeUsesData:
		return "uses_data"
	case EdgeBundledIn:
		return "bundled_in"
	case EdgeLists:
		return "lists"
	default:
		return "unknown"
	}
}

// Structural reports whether a loop through this kind of edge can never be
// rendered.
func (k EdgeKind) Structural() bool {
	return k == EdgeIncludes || k == EdgeExtends
}

// Edge is a directed dependency: From depends on To.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}
