// README: Identifiers and geographic points shared by every module.
package types

type ID string

func (id ID) String() string { return string(id) }

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IDPtr returns a pointer to a copy of id.
func IDPtr(id ID) *ID {
	return &id
}
