package domain

type SpaceID string

type Space struct {
	ID SpaceID
}
