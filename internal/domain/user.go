// Package domain contains entity types without logic, just meta-data.
package domain

import (
	"math"

	"github.com/google/uuid"
)

type UserID string

// NewUserID returns the opaque random id assigned to a connection.
func NewUserID() UserID {
	return UserID(uuid.NewString())
}

type Point struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Sqrt(math.Pow(a.X-b.X, 2) + math.Pow(a.Y-b.Y, 2))
}
