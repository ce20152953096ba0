package extern

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/sharedshape/internal/models"
)

// StateFile is the SQLite database inside the state directory.
const StateFile = "state.db"

// Store keeps the per-checkout resolution state of every pointer.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (creating if needed) the state database at path and
// brings its schema up to date.
func OpenStore(path string) (*Store, error) {
	return openStore(path, logger.Default.LogMode(logger.Warn))
}

func openStore(path string, gormLog logger.Interface) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	if err := migrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("migrating state database: %w", err)
	}
	return &Store{db: db}, nil
}

func migrator(db *gorm.DB) *gormigrate.Gormigrate {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "0",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Component{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.Component{})
			},
		},
	})

	// Clean databases skip straight to the latest schema.
	m.InitSchema(func(tx *gorm.DB) error {
		return tx.AutoMigrate(&models.Component{})
	})
	return m
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the state row for path, or ErrNotFound.
func (s *Store) Get(path string) (*models.Component, error) {
	c, found, err := s.find(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no local state for %s", ErrNotFound, path)
	}
	return c, nil
}

// Lookup is Get that treats a missing row as the zero state.
func (s *Store) Lookup(path string) (*models.Component, error) {
	c, err := s.Get(path)
	if errors.Is(err, ErrNotFound) {
		return &models.Component{Path: path}, nil
	}
	return c, err
}

// Put inserts or updates the row for c.Path.
func (s *Store) Put(c *models.Component) error {
	if c.ID == 0 {
		existing, found, err := s.find(c.Path)
		if err != nil {
			return err
		}
		if found {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
		}
	}
	return s.db.Save(c).Error
}

// find looks a row up without treating absence as an error, so gorm does
// not log "record not found" for every new path.
func (s *Store) find(path string) (*models.Component, bool, error) {
	var c models.Component
	res := s.db.Where("path = ?", path).Limit(1).Find(&c)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &c, res.RowsAffected > 0, nil
}

// List returns every row ordered by path.
func (s *Store) List() ([]models.Component, error) {
	var out []models.Component
	err := s.db.Order("path").Find(&out).Error
	return out, err
}

// Delete drops the row for path; a missing row is not an error.
func (s *Store) Delete(path string) error {
	return s.db.Where("path = ?", path).Delete(&models.Component{}).Error
}
