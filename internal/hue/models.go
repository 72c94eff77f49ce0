package hue

// Light is one controllable endpoint on the bridge
type Light struct {
	ID        int
	Name      string
	Reachable bool
}
