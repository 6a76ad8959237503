package events

// GraphTypeBuilt is emitted once for every GraphType a registry publishes.
type GraphTypeBuilt struct {
	Name     string
	TypeName string
	List     bool
	Enum     bool
}
