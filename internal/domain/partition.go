package domain

// Partition is a static rectangular zone bounding proximity computation.
// Configured at startup, immutable afterwards.
type Partition struct {
	Name        string `mapstructure:"name"`
	TopLeft     Point  `mapstructure:"top_left"`
	BottomRight Point  `mapstructure:"bottom_right"`
}

// Contains reports whether p falls inside the partition bounds (inclusive).
func (pt Partition) Contains(p Point) bool {
	return pt.TopLeft.X <= p.X && pt.TopLeft.Y <= p.Y &&
		pt.BottomRight.X >= p.X && pt.BottomRight.Y >= p.Y
}
