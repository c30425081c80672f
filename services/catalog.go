package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Catalog is the YAML file of draw types seeded at startup.
//
//	draw_types:
//	  - internal_name: final_day
//	    display_name: Final Day Draw
//	    algorithm: sha256_hex_proximity
//	    default_threshold: 0.9
type Catalog struct {
	DrawTypes []DrawTypeInput `yaml:"draw_types"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &catalog, nil
}

// SeedCatalog creates the catalog's draw types that do not exist yet and
// returns how many were created. Existing draw types are left untouched.
func (s *DrawTypeService) SeedCatalog(ctx context.Context, catalog *Catalog) (int, error) {
	created := 0
	for _, entry := range catalog.DrawTypes {
		_, err := s.Create(ctx, entry)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDrawTypeExists):
			drawTypeLog.WithField("draw_type", entry.InternalName).Debug("catalog entry already present")
		default:
			return created, fmt.Errorf("seed %q: %w", entry.InternalName, err)
		}
	}
	drawTypeLog.WithFields(logrus.Fields{"created": created, "entries": len(catalog.DrawTypes)}).Info("📚 draw type catalog seeded")
	return created, nil
}
