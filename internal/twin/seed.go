package twin

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/nursery-suite/internal/errs"
)

//go:embed seed.yaml
var defaultSeedYAML []byte

// Seed is the initial twin state.
type Seed struct {
	Users      []SeedUser     `yaml:"users"`
	Categories []SeedCategory `yaml:"categories"`
	Plants     []SeedPlant    `yaml:"plants"`
	Sales      []SeedSale     `yaml:"sales"`
}

// SeedUser is a login account. Role is ADMIN or USER.
type SeedUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// SeedCategory is a main category with its sub-categories.
type SeedCategory struct {
	Name     string   `yaml:"name"`
	Children []string `yaml:"children"`
}

// SeedPlant references its category by name.
type SeedPlant struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Quantity    int    `yaml:"quantity"`
}

// SeedSale references its plant by name. SoldAt (RFC 3339) wins over HoursAgo.
type SeedSale struct {
	Plant    string `yaml:"plant"`
	Quantity int    `yaml:"quantity"`
	SoldAt   string `yaml:"soldAt"`
	HoursAgo int    `yaml:"hoursAgo"`
}

// DefaultSeed returns the embedded seed.
func DefaultSeed() Seed {
	seed, err := ParseSeed(defaultSeedYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded seed is invalid: %v", err))
	}
	return seed
}

// LoadSeed reads a seed file. An empty path yields the embedded seed.
func LoadSeed(path string) (Seed, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSeed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, errs.Wrap(errs.Configuration, "read seed file", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, errs.Wrap(errs.Configuration, "parse seed", err)
	}
	return seed, nil
}

// apply loads the seed's catalogue and sales into an empty store.
func (seed Seed) apply(store *Store, now time.Time) error {
	categoryIDs := make(map[string]int64)
	for _, main := range seed.Categories {
		c, err := store.CreateCategory(main.Name, 0)
		if err != nil {
			return errs.Wrap(errs.Configuration, fmt.Sprintf("seed category %q", main.Name), err)
		}
		categoryIDs[strings.ToLower(c.Name)] = c.ID
		for _, child := range main.Children {
			sub, err := store.CreateCategory(child, c.ID)
			if err != nil {
				return errs.Wrap(errs.Configuration, fmt.Sprintf("seed category %q", child), err)
			}
			categoryIDs[strings.ToLower(sub.Name)] = sub.ID
		}
	}

	plants := make(map[string]Plant)
	for _, sp := range seed.Plants {
		categoryID, ok := categoryIDs[strings.ToLower(sp.Category)]
		if !ok {
			return errs.Newf(errs.Configuration, "seed plant %q: unknown category %q", sp.Name, sp.Category)
		}
		price, err := decimal.NewFromString(sp.Price)
		if err != nil {
			return errs.Wrap(errs.Configuration, fmt.Sprintf("seed plant %q: price", sp.Name), err)
		}
		description := sp.Description
		if description == "" {
			description = "Seeded plant: " + sp.Name
		}
		p, err := store.CreatePlant(PlantFields{
			Name:        sp.Name,
			Description: description,
			Price:       price,
			Quantity:    sp.Quantity,
			CategoryID:  categoryID,
		})
		if err != nil {
			return errs.Wrap(errs.Configuration, fmt.Sprintf("seed plant %q", sp.Name), err)
		}
		plants[strings.ToLower(p.Name)] = p
	}

	for i, ss := range seed.Sales {
		p, ok := plants[strings.ToLower(ss.Plant)]
		if !ok {
			return errs.Newf(errs.Configuration, "seed sale %d: unknown plant %q", i, ss.Plant)
		}
		if ss.Quantity < 1 {
			return errs.Newf(errs.Configuration, "seed sale %d: quantity must be at least 1", i)
		}
		soldAt := now.Add(-time.Duration(ss.HoursAgo) * time.Hour)
		if ss.SoldAt != "" {
			t, err := time.Parse(time.RFC3339, ss.SoldAt)
			if err != nil {
				return errs.Wrap(errs.Configuration, fmt.Sprintf("seed sale %d: soldAt", i), err)
			}
			soldAt = t
		}
		store.insertSale(Sale{
			PlantID:    p.ID,
			PlantName:  p.Name,
			PlantPrice: p.Price,
			Quantity:   ss.Quantity,
			TotalPrice: p.Price.Mul(decimal.NewFromInt(int64(ss.Quantity))),
			SoldAt:     soldAt.UTC(),
		})
	}
	return nil
}
