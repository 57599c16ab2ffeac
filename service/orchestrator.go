package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storylab-server/config"
	"storylab-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IALog is the per-call diagnostic record returned to the caller alongside
// every generation response. It is never persisted.
type IALog struct {
	TimeThinking    float64 `json:"time_thinking"`
	OriginalMessage string  `json:"original_message"`
	Model           string  `json:"model"`
}

// ShapeError means the generator answered with text that does not parse as
// the structured shape the task requires. It carries the IALog so the raw
// output reaches the caller for diagnosis.
type ShapeError struct {
	Task  string
	Log   IALog
	Cause error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("AI returned invalid JSON for %s: %v", e.Task, e.Cause)
}

func (e *ShapeError) Unwrap() error { return e.Cause }

// Fixed titles for the five canonical turning points. The generator is only
// trusted for descriptions; recognized ids always get these titles.
var turningPointTitles = map[string]string{
	"TP1": "Inciting Incident",
	"TP2": "Break into Act Two",
	"TP3": "Midpoint",
	"TP4": "Break into Act Three",
	"TP5": "Climax",
}

// Orchestrator resolves the owning screenplay, picks a model, formats the
// task prompt, calls the generation client and persists the result. All
// collaborators are fixed at construction.
type Orchestrator struct {
	db     *gorm.DB
	client *OllamaClient
	cfg    config.AIConfig
	locks  *lockTable
}

func NewOrchestrator(db *gorm.DB, client *OllamaClient, cfg config.AIConfig) *Orchestrator {
	return &Orchestrator{
		db:     db,
		client: client,
		cfg:    cfg,
		locks:  newLockTable(),
	}
}

func (o *Orchestrator) pickTextModel(screenwriter bool) string {
	if screenwriter {
		return o.cfg.TextScreenwriter
	}
	return o.cfg.TextDefault
}

func (o *Orchestrator) pickSceneModel(creative bool) string {
	if creative {
		return o.cfg.SceneCreative
	}
	return o.cfg.SceneDefault
}

// runAI executes one non-streaming generate call, timing it into the IALog.
func (o *Orchestrator) runAI(ctx context.Context, model, prompt string, opts GenerateOptions) (string, IALog, error) {
	start := time.Now()
	text, err := o.client.Generate(ctx, model, prompt, opts)
	ia := IALog{
		TimeThinking:    time.Since(start).Seconds(),
		OriginalMessage: text,
		Model:           model,
	}
	return text, ia, err
}

type SynopsisRequest struct {
	Idea         string   `json:"idea" binding:"required"`
	Premise      string   `json:"premise" binding:"required"`
	MainTheme    string   `json:"mainTheme" binding:"required"`
	Genre        string   `json:"genre" binding:"required"`
	Subgenres    []string `json:"subgenres"`
	ScreenplayID string   `json:"screenplay_id" binding:"required"`
	Screenwriter bool     `json:"screenwriter"`
}

func (o *Orchestrator) GenerateSynopsis(ctx context.Context, ownerID string, req SynopsisRequest) (string, IALog, error) {
	var synopsis string
	var ia IALog
	err := o.locks.withLock(req.ScreenplayID, func() error {
		sp, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID)
		if err != nil {
			return err
		}
		model := o.pickTextModel(req.Screenwriter)
		prompt := fillPrompt(synopsisPrompt,
			"idea", req.Idea,
			"premise", req.Premise,
			"theme", req.MainTheme,
			"genre", req.Genre,
			"subgenres", strings.Join(req.Subgenres, ", "),
		)
		text, log, err := o.runAI(ctx, model, prompt, GenerateOptions{})
		ia = log
		if err != nil {
			return err
		}
		synopsis = strings.TrimSpace(text)
		return sp.SaveSynopsis(o.db, synopsis)
	})
	return synopsis, ia, err
}

type TreatmentRequest struct {
	Logline      string `json:"logline" binding:"required"`
	Tone         string `json:"tone"`
	Audience     string `json:"audience"`
	References   string `json:"references"`
	ScreenplayID string `json:"screenplay_id" binding:"required"`
	Screenwriter bool   `json:"screenwriter"`
}

func (o *Orchestrator) GenerateTreatment(ctx context.Context, ownerID string, req TreatmentRequest) (string, IALog, error) {
	tone := req.Tone
	if tone == "" {
		tone = "cinematic"
	}
	audience := req.Audience
	if audience == "" {
		audience = "general adult"
	}

	var treatment string
	var ia IALog
	err := o.locks.withLock(req.ScreenplayID, func() error {
		sp, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID)
		if err != nil {
			return err
		}
		if sp.Synopsis == "" {
			return fmt.Errorf("%w: missing synopsis", models.ErrNotFound)
		}
		model := o.pickTextModel(req.Screenwriter)
		prompt := fillPrompt(treatmentPrompt,
			"tone", tone,
			"audience", audience,
			"references", req.References,
			"logline", req.Logline,
			"synopsis", sp.Synopsis,
		)
		text, log, err := o.runAI(ctx, model, prompt, GenerateOptions{})
		ia = log
		if err != nil {
			return err
		}
		treatment = strings.TrimSpace(text)
		return sp.SaveTreatment(o.db, treatment)
	})
	return treatment, ia, err
}

type TurningPointsRequest struct {
	ScreenplayID string `json:"screenplay_id" binding:"required"`
	Screenwriter bool   `json:"screenwriter"`
}

func (o *Orchestrator) GenerateTurningPoints(ctx context.Context, ownerID string, req TurningPointsRequest) (models.TurningPointList, IALog, error) {
	var points models.TurningPointList
	var ia IALog
	err := o.locks.withLock(req.ScreenplayID, func() error {
		sp, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID)
		if err != nil {
			return err
		}
		if sp.Treatment == "" {
			return fmt.Errorf("%w: missing treatment", models.ErrNotFound)
		}
		model := o.pickTextModel(req.Screenwriter)
		prompt := fillPrompt(turningPointsPrompt, "treatment", sp.Treatment)
		text, log, err := o.runAI(ctx, model, prompt, GenerateOptions{})
		ia = log
		if err != nil {
			return err
		}

		var raw []struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
			return &ShapeError{Task: "turning points", Log: ia, Cause: err}
		}
		points = make(models.TurningPointList, 0, len(raw))
		for _, tp := range raw {
			if tp.ID == "" {
				return &ShapeError{Task: "turning points", Log: ia, Cause: fmt.Errorf("item missing id")}
			}
			title := tp.Title
			if fixed, ok := turningPointTitles[tp.ID]; ok {
				title = fixed
			}
			points = append(points, models.TurningPoint{
				ID:          tp.ID,
				Title:       title,
				Description: tp.Description,
			})
		}
		return sp.SaveTurningPoints(o.db, points)
	})
	if err != nil {
		return nil, ia, err
	}
	return points, ia, nil
}

type CharacterRequest struct {
	SeedName     string `json:"seed_name" binding:"required"`
	Role         string `json:"role" binding:"required"`
	Goal         string `json:"goal"`
	Conflict     string `json:"conflict"`
	ScreenplayID string `json:"screenplay_id" binding:"required"`
	Creative     bool   `json:"creative"`
}

func (o *Orchestrator) GenerateCharacter(ctx context.Context, ownerID string, req CharacterRequest) (models.Character, IALog, error) {
	var ch models.Character
	var ia IALog
	err := o.locks.withLock(req.ScreenplayID, func() error {
		sp, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID)
		if err != nil {
			return err
		}
		model := o.pickSceneModel(req.Creative)
		prompt := fillPrompt(characterPrompt,
			"seed_name", req.SeedName,
			"role", req.Role,
			"goal", req.Goal,
			"conflict", req.Conflict,
		)
		text, log, err := o.runAI(ctx, model, prompt, GenerateOptions{})
		ia = log
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &ch); err != nil {
			return &ShapeError{Task: "character", Log: ia, Cause: err}
		}
		if ch.Name == "" {
			return &ShapeError{Task: "character", Log: ia, Cause: fmt.Errorf("missing name")}
		}
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		return sp.AppendCharacter(o.db, ch)
	})
	if err != nil {
		return models.Character{}, ia, err
	}
	return ch, ia, nil
}

type LocationRequest struct {
	SeedName     string `json:"seed_name" binding:"required"`
	Genre        string `json:"genre" binding:"required"`
	Notes        string `json:"notes"`
	ScreenplayID string `json:"screenplay_id" binding:"required"`
	Creative     bool   `json:"creative"`
}

func (o *Orchestrator) GenerateLocation(ctx context.Context, ownerID string, req LocationRequest) (models.Location, IALog, error) {
	var loc models.Location
	var ia IALog
	err := o.locks.withLock(req.ScreenplayID, func() error {
		sp, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID)
		if err != nil {
			return err
		}
		model := o.pickSceneModel(req.Creative)
		prompt := fillPrompt(locationPrompt,
			"seed_name", req.SeedName,
			"genre", req.Genre,
			"notes", req.Notes,
		)
		text, log, err := o.runAI(ctx, model, prompt, GenerateOptions{})
		ia = log
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &loc); err != nil {
			return &ShapeError{Task: "location", Log: ia, Cause: err}
		}
		if loc.Name == "" {
			return &ShapeError{Task: "location", Log: ia, Cause: fmt.Errorf("missing name")}
		}
		if loc.ID == "" {
			loc.ID = uuid.NewString()
		}
		return sp.AppendLocation(o.db, loc)
	})
	if err != nil {
		return models.Location{}, ia, err
	}
	return loc, ia, nil
}

type SceneRequest struct {
	Header       string   `json:"header" binding:"required"`
	Context      string   `json:"context" binding:"required"`
	Goal         string   `json:"goal" binding:"required"`
	Style        string   `json:"style"`
	ScreenplayID string   `json:"screenplay_id" binding:"required"`
	Creative     bool     `json:"creative"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    *int     `json:"max_tokens"`
}

func (r SceneRequest) prompt() string {
	style := r.Style
	if style == "" {
		style = "standard Hollywood"
	}
	creativeLevel := "moderate"
	if r.Creative {
		creativeLevel = "high"
	}
	return fillPrompt(scenePrompt,
		"header", r.Header,
		"context", r.Context,
		"goal", r.Goal,
		"style", style,
		"creative_level", creativeLevel,
	)
}

func (o *Orchestrator) GenerateScene(ctx context.Context, ownerID string, req SceneRequest) (string, IALog, error) {
	var content string
	var ia IALog
	err := o.locks.withLock(req.ScreenplayID, func() error {
		sp, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID)
		if err != nil {
			return err
		}
		model := o.pickSceneModel(req.Creative)
		text, log, err := o.runAI(ctx, model, req.prompt(), GenerateOptions{
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		ia = log
		if err != nil {
			return err
		}
		content = strings.TrimSpace(text)
		return sp.AppendScene(o.db, models.Scene{
			ID:      uuid.NewString(),
			Header:  req.Header,
			Content: content,
			Order:   len(sp.Scenes) + 1,
		})
	})
	return content, ia, err
}

// GenerateSceneStream is the streaming variant behind the websocket endpoint.
// Fragments go to emit as they arrive; the draft is not persisted.
func (o *Orchestrator) GenerateSceneStream(ctx context.Context, ownerID string, req SceneRequest, emit func(fragment string) error) (string, IALog, error) {
	if _, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID); err != nil {
		return "", IALog{}, err
	}
	model := o.pickSceneModel(req.Creative)
	start := time.Now()
	text, err := o.client.GenerateStream(ctx, model, req.prompt(), GenerateOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, emit)
	ia := IALog{
		TimeThinking:    time.Since(start).Seconds(),
		OriginalMessage: text,
		Model:           model,
	}
	return strings.TrimSpace(text), ia, err
}

type DialogueRequest struct {
	Raw          string `json:"raw" binding:"required"`
	ScreenplayID string `json:"screenplay_id" binding:"required"`
	Creative     bool   `json:"creative"`
}

func (o *Orchestrator) PolishDialogue(ctx context.Context, ownerID string, req DialogueRequest) (string, IALog, error) {
	if _, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID); err != nil {
		return "", IALog{}, err
	}
	model := o.pickSceneModel(req.Creative)
	prompt := fillPrompt(dialoguePolishPrompt, "raw", req.Raw)
	text, ia, err := o.runAI(ctx, model, prompt, GenerateOptions{})
	if err != nil {
		return "", ia, err
	}
	return strings.TrimSpace(text), ia, nil
}

type ReviewRequest struct {
	Text         string `json:"text" binding:"required"`
	ScreenplayID string `json:"screenplay_id" binding:"required"`
	Screenwriter bool   `json:"screenwriter"`
}

func (o *Orchestrator) ReviewScript(ctx context.Context, ownerID string, req ReviewRequest) (string, IALog, error) {
	if _, err := models.GetScreenplayOwned(o.db, req.ScreenplayID, ownerID); err != nil {
		return "", IALog{}, err
	}
	model := o.pickTextModel(req.Screenwriter)
	prompt := fillPrompt(reviewPrompt, "text", req.Text)
	text, ia, err := o.runAI(ctx, model, prompt, GenerateOptions{})
	if err != nil {
		return "", ia, err
	}
	return strings.TrimSpace(text), ia, nil
}
