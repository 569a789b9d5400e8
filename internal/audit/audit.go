// Package audit persists one write-once entry per pipeline run and
// optionally announces it on NATS.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/actions"
)

var tracer = otel.Tracer("adminrag.audit")

// IssueSampleSize caps the issues copied into an entry.
const IssueSampleSize = 10

var (
	// ErrAlreadyRecorded is returned when an entry for the run id exists.
	ErrAlreadyRecorded = errors.New("audit entry already recorded")

	// ErrInvalidRunID is returned for run ids that are not safe file names.
	ErrInvalidRunID = errors.New("invalid run id")
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Entry is the durable record of a run.
type Entry struct {
	RunID        string           `json:"run_id"`
	Goal         string           `json:"goal"`
	DryRun       bool             `json:"dry_run"`
	RecordsCount int              `json:"records_count"`
	Plan         actions.Plan     `json:"plan"`
	Actions      []actions.Result `json:"actions"`
	IssuesSample []string         `json:"issues_sample"`
	Error        string           `json:"error,omitempty"`

	// Timestamp is seconds since the epoch. Zero means "set on record".
	Timestamp float64 `json:"_ts"`
}

// SampleIssues returns at most IssueSampleSize issues, never nil.
func SampleIssues(issues []string) []string {
	n := min(len(issues), IssueSampleSize)
	out := make([]string, n)
	copy(out, issues[:n])
	return out
}

// Ref points at a recorded entry.
type Ref struct {
	OK    bool   `json:"ok"`
	Audit string `json:"audit"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) (Ref, error)
}

// Publisher announces recorded entries. Publish failures never fail a
// recording.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

// FileRecorder writes each entry to <dir>/<run_id>.json.
type FileRecorder struct {
	dir        string
	publishers []Publisher
	now        func() time.Time
	create     func(path string) (io.WriteCloser, error)
	logger     *zap.Logger
}

var _ Recorder = (*FileRecorder)(nil)

// NewFileRecorder creates a FileRecorder. The directory is created on the
// first Record.
func NewFileRecorder(dir string, logger *zap.Logger, publishers ...Publisher) *FileRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRecorder{dir: dir, publishers: publishers, now: time.Now, create: createExclusive, logger: logger}
}

// createExclusive creates path, failing with os.ErrExist if it is present.
func createExclusive(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// Record implements Recorder. The file is created exclusively, so a run id
// can be recorded once.
func (r *FileRecorder) Record(ctx context.Context, e Entry) (Ref, error) {
	ctx, span := tracer.Start(ctx, "FileRecorder.Record")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", e.RunID))

	if !runIDPattern.MatchString(e.RunID) {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRunID, e.RunID)
	}
	if e.Timestamp == 0 {
		e.Timestamp = float64(r.now().UnixNano()) / 1e9
	}
	if e.IssuesSample == nil {
		e.IssuesSample = []string{}
	}
	if e.Actions == nil {
		e.Actions = []actions.Result{}
	}

	data, err := encode(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Ref{}, err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return Ref{}, fmt.Errorf("creating audit dir: %w", err)
	}
	path := filepath.Join(r.dir, e.RunID+".json")
	f, err := r.create(path)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			err = fmt.Errorf("%w: %s", ErrAlreadyRecorded, path)
		} else {
			err = fmt.Errorf("creating audit file: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Ref{}, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		r.discard(path, e.RunID)
		err = fmt.Errorf("writing audit file: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Ref{}, err
	}
	if err := f.Close(); err != nil {
		r.discard(path, e.RunID)
		err = fmt.Errorf("closing audit file: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Ref{}, err
	}

	for _, p := range r.publishers {
		if err := p.Publish(ctx, e); err != nil {
			r.logger.Warn("audit publish failed", zap.String("run.id", e.RunID), zap.Error(err))
		}
	}

	r.logger.Info("audit recorded", zap.String("run.id", e.RunID), zap.String("path", path))
	span.SetStatus(codes.Ok, "recorded")
	return Ref{OK: true, Audit: path}, nil
}

// discard removes a partially written entry so the run id can be recorded
// again.
func (r *FileRecorder) discard(path, runID string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("removing partial audit file failed",
			zap.String("run.id", runID), zap.String("path", path), zap.Error(err))
	}
}

// encode renders e as two-space indented JSON without HTML escaping.
func encode(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encoding audit entry: %w", err)
	}
	return buf.Bytes(), nil
}
