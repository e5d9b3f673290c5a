package store

import (
	"errors"

	"gorm.io/gorm"
)

// dao is the shared CRUD base, bound at compile time to one GORM model.
// Entity DAOs embed it and add their own query logic on top.
type dao[M any] struct {
	db *gorm.DB
}

func (d dao[M]) byID(id uint, preloads ...string) (*M, bool, error) {
	var m M
	tx := d.db
	for _, p := range preloads {
		tx = tx.Preload(p)
	}
	if err := tx.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &m, true, nil
}

func (d dao[M]) one(conds map[string]any, preloads ...string) (*M, bool, error) {
	var m M
	tx := d.db
	for _, p := range preloads {
		tx = tx.Preload(p)
	}
	if err := tx.Where(conds).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &m, true, nil
}

func (d dao[M]) all(conds map[string]any, order string, preloads ...string) ([]M, error) {
	var models []M
	tx := d.db
	for _, p := range preloads {
		tx = tx.Preload(p)
	}
	if len(conds) > 0 {
		tx = tx.Where(conds)
	}
	if order != "" {
		tx = tx.Order(order)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

func (d dao[M]) insert(m *M) error {
	if err := d.db.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
