package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"go.uber.org/zap"
)

// Workspace subdirectories created under output/<video-name>/
const (
	PartsDir = "parts"
	SubsDir  = "subs"
	AudioDir = "audio"
	FinalDir = "final"
)

// Manager handles file storage operations
type Manager struct {
	basePath       string
	outputDir      string
	credentialsDir string
	logger         *zap.Logger
}

// NewManager creates a new storage manager
func NewManager(basePath, outputDir, credentialsDir string, logger *zap.Logger) *Manager {
	if outputDir == "" {
		outputDir = filepath.Join(basePath, "output")
	}
	if credentialsDir == "" {
		credentialsDir = filepath.Join(basePath, "credentials")
	}
	return &Manager{
		basePath:       basePath,
		outputDir:      outputDir,
		credentialsDir: credentialsDir,
		logger:         logger,
	}
}

// Initialize creates the storage directory structure
func (m *Manager) Initialize() error {
	dirs := []string{
		m.OutputDir(),
		m.CredentialsDir(),
		m.TempDir(),
		m.DownloadsDir(),
		m.JobsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		m.logger.Debug("Created storage directory", zap.String("path", dir))
	}

	return nil
}

// OutputDir returns the root of the per-video output tree
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// CredentialsDir returns the directory holding token and config JSON files
func (m *Manager) CredentialsDir() string {
	return m.credentialsDir
}

// TempDir returns the temp directory path
func (m *Manager) TempDir() string {
	return filepath.Join(m.basePath, "temp")
}

// DownloadsDir returns the downloads directory path
func (m *Manager) DownloadsDir() string {
	return filepath.Join(m.basePath, "downloads")
}

// JobsDir returns the job records directory path
func (m *Manager) JobsDir() string {
	return filepath.Join(m.basePath, "jobs")
}

// VideoDir returns output/<name> without creating it
func (m *Manager) VideoDir(name string) string {
	return filepath.Join(m.outputDir, SanitizeFilename(name))
}

// VideoWorkspace creates output/<name> and its subdirectories
func (m *Manager) VideoWorkspace(name string) (string, error) {
	dir := m.VideoDir(name)
	for _, sub := range []string{PartsDir, SubsDir, AudioDir, FinalDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("failed to create workspace %s: %w", dir, err)
		}
	}
	return dir, nil
}

// PartPath returns output/<name>/<sub>/<name>_parte_NN<suffix>
func (m *Manager) PartPath(name, sub string, index int, suffix string) string {
	base := SanitizeFilename(name)
	return filepath.Join(m.outputDir, base, sub, fmt.Sprintf("%s_parte_%02d%s", base, index, suffix))
}

// ListFinalParts returns the finished part videos of a workspace ordered by
// part number
func (m *Manager) ListFinalParts(name string) ([]string, error) {
	pattern := filepath.Join(m.VideoDir(name), FinalDir, "*_parte_*.mp4")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return PartIndex(files[i]) < PartIndex(files[j])
	})
	return files, nil
}

// GetTempPath returns a temp file path
func (m *Manager) GetTempPath(filename string) string {
	return filepath.Join(m.TempDir(), filename)
}

// DeleteFile removes a file
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// DeleteFiles removes files and logs the ones that could not be removed
func (m *Manager) DeleteFiles(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := m.DeleteFile(p); err != nil {
			m.logger.Warn("Failed to delete intermediate file", zap.String("path", p), zap.Error(err))
		}
	}
}

// FileExists checks if a file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NonEmpty reports whether path is a regular file with at least one byte
func (m *Manager) NonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// GetFileSize returns the size of a file
func (m *Manager) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// CleanupTemp removes everything in the temp directory
func (m *Manager) CleanupTemp() error {
	entries, err := os.ReadDir(m.TempDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(m.TempDir(), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("Failed to delete temp file", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// ReadJSON loads a JSON file into v
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON stores v as indented JSON, creating parent directories
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

// GetJobPath returns the path for a job record
func (m *Manager) GetJobPath(jobID string) string {
	return filepath.Join(m.JobsDir(), jobID+".json")
}

// SaveJob stores a job record
func (m *Manager) SaveJob(job *models.Job) error {
	return WriteJSON(m.GetJobPath(job.ID), job)
}

// GetJob retrieves a job record by ID
func (m *Manager) GetJob(id string) (*models.Job, error) {
	var job models.Job
	if err := ReadJSON(m.GetJobPath(id), &job); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read job: %w", err)
	}
	return &job, nil
}

// ListJobs returns all job records, newest first
func (m *Manager) ListJobs() ([]*models.Job, error) {
	entries, err := os.ReadDir(m.JobsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Job{}, nil
		}
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	jobs := make([]*models.Job, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		jobID := strings.TrimSuffix(entry.Name(), ".json")
		job, err := m.GetJob(jobID)
		if err != nil {
			m.logger.Warn("Failed to load job", zap.String("id", jobID), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// DeleteJob removes a job record
func (m *Manager) DeleteJob(id string) error {
	return m.DeleteFile(m.GetJobPath(id))
}
