// Package store provides the persistent backends for the orchestration core:
// a GORM-backed relational store for workflows, executions, checkpoints, tool
// calls and review panels, and a Redis-backed checkpoint store for hosts that
// want checkpoint decisions visible across processes.
package store

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB wraps a GORM connection with the entity stores hanging off it.
type DB struct {
	gorm   *gorm.DB
	logger *zap.Logger
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string, logger *zap.Logger) (*DB, error) {
	return OpenDialector(postgres.Open(dsn), logger)
}

// OpenDialector connects through an explicit GORM dialector. Tests use this
// with an embedded SQLite database.
func OpenDialector(dialector gorm.Dialector, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	db := &DB{gorm: gdb, logger: logger.With(zap.String("component", "store"))}
	if err := db.migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	return db.gorm.AutoMigrate(
		&workflowRow{},
		&executionRow{},
		&checkpointRow{},
		&toolCallRow{},
		&panelRow{},
		&voteRow{},
	)
}

// Workflows returns the workflow definition store.
func (db *DB) Workflows() *WorkflowStore { return &WorkflowStore{db: db} }

// Executions returns the execution store.
func (db *DB) Executions() *ExecutionStore { return &ExecutionStore{db: db} }

// Checkpoints returns the checkpoint store.
func (db *DB) Checkpoints() *CheckpointStore { return &CheckpointStore{db: db} }

// ToolCalls returns the tool call store.
func (db *DB) ToolCalls() *ToolCallStore { return &ToolCallStore{db: db} }

// Panels returns the review panel store.
func (db *DB) Panels() *PanelStore { return &PanelStore{db: db} }

// Row models. Deeply nested structures (step lists, vote summaries, node
// maps) are stored as JSON documents; columns exist for everything queries
// filter or order on.

type workflowRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"index"`
	IsDefault bool   `gorm:"index"`
	Document  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (workflowRow) TableName() string { return "workflows" }

type executionRow struct {
	ID          string `gorm:"primaryKey"`
	WorkflowID  string `gorm:"index"`
	SessionID   string
	Status      string `gorm:"index"`
	Iterations  int
	Error       string
	Document    []byte
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (executionRow) TableName() string { return "executions" }

type checkpointRow struct {
	ID              string `gorm:"primaryKey"`
	ExecutionID     string `gorm:"index"`
	NodeExecutionID string
	CheckpointType  string
	PromptMessage   string
	Options         []byte
	Decision        string
	Feedback        string
	CreatedAt       time.Time `gorm:"index"`
	DecidedAt       *time.Time
}

func (checkpointRow) TableName() string { return "checkpoints" }

type toolCallRow struct {
	ID              string `gorm:"primaryKey"`
	ExecutionID     string `gorm:"index"`
	NodeExecutionID string `gorm:"index"`
	ToolName        string
	Input           string
	Output          string
	Status          string `gorm:"index"`
	ErrorMessage    string
	StartedAt       time.Time `gorm:"index"`
	CompletedAt     *time.Time
}

func (toolCallRow) TableName() string { return "tool_calls" }

type panelRow struct {
	ID              string `gorm:"primaryKey"`
	ExecutionID     string `gorm:"index"`
	NodeExecutionID string
	Status          string
	Config          []byte
	Outcome         string
	Summary         []byte
	Error           string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

func (panelRow) TableName() string { return "review_panels" }

type voteRow struct {
	ID               string `gorm:"primaryKey"`
	PanelExecutionID string `gorm:"index"`
	ReviewerID       string
	Vote             string
	Feedback         string
	Issues           []byte
	Weight           float64
	CreatedAt        time.Time `gorm:"index"`
}

func (voteRow) TableName() string { return "reviewer_votes" }
