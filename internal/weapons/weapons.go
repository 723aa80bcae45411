// Package weapons loads the static weapon profiles used by shoot resolution.
package weapons

import (
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/encoding/json"
)

// Fallbacks applied when a profile leaves range or damage unset.
const (
	DefaultWeapon   = "HandGun"
	DefaultDistance = 100.0
	DefaultDamage   = 25
)

// ErrUnknownDefault is returned when the catalog default is not one of its weapons.
var ErrUnknownDefault = errors.New("default weapon is not in the catalog")

// Profile is a read-only weapon definition.
type Profile struct {
	Name         string  `json:"weaponName"`
	Damage       int     `json:"damage"`
	Distance     float64 `json:"distance"`
	FireRate     float64 `json:"fireRate"`
	MagazineSize int     `json:"magazineSize"`
	BurstCount   int     `json:"burstCount"`
	Automatic    bool    `json:"isAutomatic"`
}

// Catalog maps weapon names to profiles.
type Catalog struct {
	profiles map[string]Profile
	names    []string
	fallback string
}

type document struct {
	Default string    `json:"default"`
	Weapons []Profile `json:"weapons"`
}

// Load parses a weapon document {"default":"HandGun","weapons":[...]}.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode weapons: %w", err)
	}

	return New(doc.Default, doc.Weapons)
}

// New builds a catalog. An empty fallback means DefaultWeapon.
func New(fallback string, profiles []Profile) (*Catalog, error) {
	if fallback == "" {
		fallback = DefaultWeapon
	}

	c := &Catalog{profiles: make(map[string]Profile, len(profiles)), fallback: fallback}
	for _, p := range profiles {
		if p.Name == "" {
			return nil, errors.New("weapon without a name")
		}
		if _, dup := c.profiles[p.Name]; dup {
			return nil, fmt.Errorf("weapon %q defined twice", p.Name)
		}
		c.profiles[p.Name] = p
		c.names = append(c.names, p.Name)
	}

	if _, ok := c.profiles[fallback]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDefault, fallback)
	}

	return c, nil
}

// Resolve returns the profile for name, or the default profile when the name is
// empty or unknown. Unset distance and damage take the package fallbacks.
func (c *Catalog) Resolve(name string) Profile {
	p, ok := c.profiles[name]
	if !ok {
		p = c.profiles[c.fallback]
	}

	if p.Distance <= 0 {
		p.Distance = DefaultDistance
	}
	if p.Damage <= 0 {
		p.Damage = DefaultDamage
	}

	return p
}

// Has reports whether name is a known weapon.
func (c *Catalog) Has(name string) bool {
	_, ok := c.profiles[name]
	return ok
}

// Names returns weapon names in document order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
