package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workflow states of the screenwriting pipeline. The field is caller-set;
// ordering is enforced only through the prerequisite checks on generation.
const (
	StateS1     = "S1"
	StateDone   = "DONE"
	StateOnHold = "ON_HOLD"
	StateResume = "RESUME"
)

var workflowStates = map[string]bool{
	"S1": true, "S2": true, "S3": true, "S4": true, "S5": true,
	"S6": true, "S7": true, "S8": true, "S9": true,
	StateDone: true, StateOnHold: true, StateResume: true,
}

func ValidState(s string) bool {
	return workflowStates[s]
}

type TurningPoint struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Character struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Bio      string `json:"bio,omitempty"`
	Goal     string `json:"goal,omitempty"`
	Conflict string `json:"conflict,omitempty"`
	Arc      string `json:"arc,omitempty"`
}

type Subplot struct {
	ID        string `json:"id"`
	Logline   string `json:"logline"`
	Relevance string `json:"relevance,omitempty"`
}

type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Details string `json:"details,omitempty"`
}

type Scene struct {
	ID      string `json:"id"`
	Header  string `json:"header"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

type TurningPointList []TurningPoint
type CharacterList []Character
type SubplotList []Subplot
type LocationList []Location
type SceneList []Scene

// The list columns are stored as JSON documents; the rows stay schemaless
// and the shapes are validated at the API boundary.

func jsonValue(v interface{}) (driver.Value, error) {
	return json.Marshal(v)
}

func jsonScan(dst interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	switch b := value.(type) {
	case []byte:
		return json.Unmarshal(b, dst)
	case string:
		return json.Unmarshal([]byte(b), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}

func (l TurningPointList) Value() (driver.Value, error) { return jsonValue(l) }
func (l *TurningPointList) Scan(v interface{}) error    { return jsonScan(l, v) }
func (l CharacterList) Value() (driver.Value, error)    { return jsonValue(l) }
func (l *CharacterList) Scan(v interface{}) error       { return jsonScan(l, v) }
func (l SubplotList) Value() (driver.Value, error)      { return jsonValue(l) }
func (l *SubplotList) Scan(v interface{}) error         { return jsonScan(l, v) }
func (l LocationList) Value() (driver.Value, error)     { return jsonValue(l) }
func (l *LocationList) Scan(v interface{}) error        { return jsonScan(l, v) }
func (l SceneList) Value() (driver.Value, error)        { return jsonValue(l) }
func (l *SceneList) Scan(v interface{}) error           { return jsonScan(l, v) }

type Screenplay struct {
	ID        string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProjectID string `gorm:"type:varchar(36);index" json:"project_id"`
	OwnerID   string `gorm:"type:varchar(36);index" json:"owner_id"`
	Title     string `gorm:"type:varchar(200)" json:"title"`
	Logline   string `gorm:"type:text" json:"logline,omitempty"`
	State     string `gorm:"type:varchar(16)" json:"state"`
	Synopsis  string `gorm:"type:text" json:"synopsis,omitempty"`
	Treatment string `gorm:"type:text" json:"treatment,omitempty"`

	TurningPoints TurningPointList `gorm:"type:jsonb" json:"turning_points"`
	Characters    CharacterList    `gorm:"type:jsonb" json:"characters"`
	Subplots      SubplotList      `gorm:"type:jsonb" json:"subplots"`
	Locations     LocationList     `gorm:"type:jsonb" json:"locations"`
	Scenes        SceneList        `gorm:"type:jsonb" json:"scenes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Screenplay) TableName() string {
	return "screenplays"
}

// CreateScreenplay inserts a screenplay in its initial state with every list
// empty. The caller must already have verified project ownership.
func CreateScreenplay(db *gorm.DB, projectID, ownerID, title, logline string) (*Screenplay, error) {
	sp := &Screenplay{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		OwnerID:       ownerID,
		Title:         title,
		Logline:       logline,
		State:         StateS1,
		TurningPoints: TurningPointList{},
		Characters:    CharacterList{},
		Subplots:      SubplotList{},
		Locations:     LocationList{},
		Scenes:        SceneList{},
	}
	if err := db.Create(sp).Error; err != nil {
		return nil, err
	}
	return sp, nil
}

// GetScreenplayOwned loads a screenplay; absence and foreign ownership both
// come back as ErrNotFound so other users' ids are indistinguishable from
// missing ones.
func GetScreenplayOwned(db *gorm.DB, id, ownerID string) (*Screenplay, error) {
	var sp Screenplay
	err := db.First(&sp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sp.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &sp, nil
}

func ListScreenplays(db *gorm.DB, ownerID, projectID string) ([]Screenplay, error) {
	q := db.Where("owner_id = ?", ownerID).Order("created_at")
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	var rows []Screenplay
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ScreenplayUpdate carries a partial update; only non-nil fields are applied.
type ScreenplayUpdate struct {
	Title         *string           `json:"title"`
	Logline       *string           `json:"logline"`
	State         *string           `json:"state"`
	TurningPoints *TurningPointList `json:"turning_points"`
	Characters    *CharacterList    `json:"characters"`
	Subplots      *SubplotList      `json:"subplots"`
	Locations     *LocationList     `json:"locations"`
	Scenes        *SceneList        `json:"scenes"`
}

func UpdateScreenplay(db *gorm.DB, sp *Screenplay, upd ScreenplayUpdate) error {
	cols := map[string]interface{}{"updated_at": time.Now()}
	if upd.Title != nil {
		sp.Title = *upd.Title
		cols["title"] = *upd.Title
	}
	if upd.Logline != nil {
		sp.Logline = *upd.Logline
		cols["logline"] = *upd.Logline
	}
	if upd.State != nil {
		sp.State = *upd.State
		cols["state"] = *upd.State
	}
	if upd.TurningPoints != nil {
		sp.TurningPoints = *upd.TurningPoints
		cols["turning_points"] = *upd.TurningPoints
	}
	if upd.Characters != nil {
		sp.Characters = *upd.Characters
		cols["characters"] = *upd.Characters
	}
	if upd.Subplots != nil {
		sp.Subplots = *upd.Subplots
		cols["subplots"] = *upd.Subplots
	}
	if upd.Locations != nil {
		sp.Locations = *upd.Locations
		cols["locations"] = *upd.Locations
	}
	if upd.Scenes != nil {
		sp.Scenes = *upd.Scenes
		cols["scenes"] = *upd.Scenes
	}
	return db.Model(sp).Updates(cols).Error
}

func DeleteScreenplay(db *gorm.DB, id string) error {
	return db.Delete(&Screenplay{}, "id = ?", id).Error
}

// Field writers used by the generation orchestrator. Each touches only its
// column plus updated_at.

func (sp *Screenplay) SaveSynopsis(db *gorm.DB, text string) error {
	sp.Synopsis = text
	return db.Model(sp).Updates(map[string]interface{}{
		"synopsis":   text,
		"updated_at": time.Now(),
	}).Error
}

func (sp *Screenplay) SaveTreatment(db *gorm.DB, text string) error {
	sp.Treatment = text
	return db.Model(sp).Updates(map[string]interface{}{
		"treatment":  text,
		"updated_at": time.Now(),
	}).Error
}

func (sp *Screenplay) SaveTurningPoints(db *gorm.DB, points TurningPointList) error {
	sp.TurningPoints = points
	return db.Model(sp).Updates(map[string]interface{}{
		"turning_points": points,
		"updated_at":     time.Now(),
	}).Error
}

func (sp *Screenplay) AppendCharacter(db *gorm.DB, ch Character) error {
	sp.Characters = append(sp.Characters, ch)
	return db.Model(sp).Updates(map[string]interface{}{
		"characters": sp.Characters,
		"updated_at": time.Now(),
	}).Error
}

func (sp *Screenplay) AppendLocation(db *gorm.DB, loc Location) error {
	sp.Locations = append(sp.Locations, loc)
	return db.Model(sp).Updates(map[string]interface{}{
		"locations":  sp.Locations,
		"updated_at": time.Now(),
	}).Error
}

func (sp *Screenplay) AppendScene(db *gorm.DB, sc Scene) error {
	sp.Scenes = append(sp.Scenes, sc)
	return db.Model(sp).Updates(map[string]interface{}{
		"scenes":     sp.Scenes,
		"updated_at": time.Now(),
	}).Error
}
