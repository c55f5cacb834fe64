package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is where the upload server keeps its history.
const DefaultPath = "predictions.db"

var ErrNotFound = errors.New("record not found")

// Store persists upload predictions and training runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        prediction TEXT NOT NULL,
        confidence REAL NOT NULL,
        image_data BLOB,
        mime_type TEXT,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user_id, timestamp);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type Prediction struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"-"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
	ImageData  []byte    `json:"-"`
	MimeType   string    `json:"mime_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SavePrediction stores p and returns its id.
func (s *Store) SavePrediction(p Prediction) (int64, error) {
	if p.UserID == "" {
		return 0, errors.New("user id required")
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	res, err := s.db.Exec(`
        INSERT INTO predictions (user_id, prediction, confidence, image_data, mime_type, timestamp)
        VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Prediction, p.Confidence, p.ImageData, p.MimeType, p.Timestamp)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentPredictions returns the newest predictions of userID without image bytes.
func (s *Store) RecentPredictions(userID string, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
        SELECT id, prediction, confidence, mime_type, timestamp
        FROM predictions
        WHERE user_id = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]Prediction, 0)
	for rows.Next() {
		p := Prediction{UserID: userID}
		var mime sql.NullString
		if err := rows.Scan(&p.ID, &p.Prediction, &p.Confidence, &mime, &p.Timestamp); err != nil {
			return nil, err
		}
		p.MimeType = mime.String
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// PredictionImage returns the stored upload for id if it belongs to userID.
func (s *Store) PredictionImage(id int64, userID string) ([]byte, string, error) {
	var data []byte
	var mime sql.NullString
	err := s.db.QueryRow(`
        SELECT image_data, mime_type FROM predictions WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&data, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return data, mime.String, nil
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

func (s *Store) SaveTrainingLog(log TrainingLog) error {
	if log.TrainedAt.IsZero() {
		log.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
        INSERT INTO training_log (model_name, accuracy, precision, recall, f1, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ModelName, log.Accuracy, log.Precision, log.Recall, log.F1, log.TrainedAt, log.DataPoints)
	return err
}

func (s *Store) LoadTrainingLog() ([]TrainingLog, error) {
	rows, err := s.db.Query(`
        SELECT model_name, accuracy, precision, recall, f1, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &log.F1, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
