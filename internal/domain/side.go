package domain

// PositionSide is the logical side of an open position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Valid reports whether the side is one of the two accepted values.
func (s PositionSide) Valid() bool {
	return s == SideLong || s == SideShort
}
