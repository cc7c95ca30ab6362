// Package seed loads demo fixtures through the domain services and wipes
// them again.
package seed

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
)

//go:embed default.toml
var defaultFixtures string

// Fixtures is the decoded fixture file.
type Fixtures struct {
	Identities []IdentityFixture `toml:"identity"`
	Doors      []DoorFixture     `toml:"door"`
}

// IdentityFixture describes one identity and its profile.
type IdentityFixture struct {
	Username    string     `toml:"username"`
	Password    string     `toml:"password"`
	Email       string     `toml:"email"`
	FirstName   string     `toml:"first_name"`
	LastName    string     `toml:"last_name"`
	Role        enums.Role `toml:"role"`
	AccessCode  string     `toml:"access_code"`
	Phone       string     `toml:"phone"`
	IsStaff     bool       `toml:"is_staff"`
	IsSuperuser bool       `toml:"is_superuser"`
}

// DoorFixture describes a door and, optionally, its initial lock state.
type DoorFixture struct {
	Name        string          `toml:"name"`
	Location    string          `toml:"location"`
	Description string          `toml:"description"`
	State       enums.DoorState `toml:"state"`
	Active      *bool           `toml:"active"`
	Lock        *LockFixture    `toml:"lock"`
}

// LockFixture is the initial override of a door. ChangedBy names a fixture
// or existing username; empty records the change as the system.
type LockFixture struct {
	Engaged   bool   `toml:"engaged"`
	Notes     string `toml:"notes"`
	ChangedBy string `toml:"changed_by"`
}

// Default returns the built-in demo campus.
func Default() (Fixtures, error) {
	return Parse(defaultFixtures)
}

// LoadFile reads fixtures from path.
func LoadFile(path string) (Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(string(raw))
}

// Parse decodes fixtures and rejects keys the schema does not know, so a
// misspelt field fails loudly instead of seeding defaults.
func Parse(data string) (Fixtures, error) {
	var f Fixtures
	meta, err := toml.Decode(data, &f)
	if err != nil {
		return Fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return Fixtures{}, fmt.Errorf("unknown fixture keys: %s", strings.Join(keys, ", "))
	}
	if err := f.validate(); err != nil {
		return Fixtures{}, err
	}
	return f, nil
}

func (f Fixtures) validate() error {
	seen := map[string]bool{}
	for i, id := range f.Identities {
		name := strings.TrimSpace(id.Username)
		if name == "" {
			return fmt.Errorf("identity %d: username required", i)
		}
		if seen[name] {
			return fmt.Errorf("identity %s listed twice", name)
		}
		seen[name] = true
		if id.Role != "" && !id.Role.IsValid() {
			return fmt.Errorf("identity %s: unknown role %q", name, id.Role)
		}
	}
	doors := map[string]bool{}
	for i, d := range f.Doors {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return fmt.Errorf("door %d: name required", i)
		}
		if doors[name] {
			return fmt.Errorf("door %s listed twice", name)
		}
		doors[name] = true
		if d.State != "" && !d.State.IsValid() {
			return fmt.Errorf("door %s: unknown state %q", name, d.State)
		}
	}
	return nil
}
