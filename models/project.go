package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Project struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string    `gorm:"type:varchar(128)" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	OwnerID     string    `gorm:"type:varchar(36);index" json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

func CreateProject(db *gorm.DB, ownerID, name, description string) (*Project, error) {
	p := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
	}
	if err := db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetProjectOwned loads a project and checks ownership: ErrNotFound when the
// row is absent, ErrForbidden when it belongs to someone else.
func GetProjectOwned(db *gorm.DB, id, ownerID string) (*Project, error) {
	var p Project
	err := db.First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return &p, nil
}

// ListProjects returns the owner's projects, optionally filtered by a
// case-insensitive substring of the name.
func ListProjects(db *gorm.DB, ownerID, nameFilter string) ([]Project, error) {
	q := db.Where("owner_id = ?", ownerID).Order("created_at")
	if nameFilter != "" {
		q = q.Where("lower(name) LIKE ?", "%"+strings.ToLower(nameFilter)+"%")
	}
	var rows []Project
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ProjectUpdate carries a partial update; nil fields are left untouched.
type ProjectUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func UpdateProject(db *gorm.DB, p *Project, upd ProjectUpdate) error {
	cols := map[string]interface{}{"updated_at": time.Now()}
	if upd.Name != nil {
		p.Name = *upd.Name
		cols["name"] = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
		cols["description"] = *upd.Description
	}
	return db.Model(p).Updates(cols).Error
}

// DeleteProject removes the project and every screenplay under it in one
// transaction.
func DeleteProject(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&Screenplay{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Project{}, "id = ?", id).Error
	})
}
