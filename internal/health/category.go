package health

import (
	"fmt"
	"strings"
)

// Category groups readings by hardware subsystem.
type Category string

const (
	Thermal Category = "thermal"
	Power   Category = "power"
	Storage Category = "storage"
	Network Category = "network"
)

// Categories lists every category in record order.
func Categories() []Category {
	return []Category{Thermal, Power, Storage, Network}
}

func (c Category) Valid() bool {
	switch c {
	case Thermal, Power, Storage, Network:
		return true
	}

	return false
}

func (c Category) String() string {
	return string(c)
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}

	return c, nil
}
