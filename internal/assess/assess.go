// Package assess runs patient risk assessments and renders their results.
package assess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/strrl/ng12-assist/internal/logging"
	"github.com/strrl/ng12-assist/pkg/models"
)

// ErrEmptyPatientID is returned when no patient id was given
var ErrEmptyPatientID = errors.New("patient id is empty")

// Assessor runs one assessment on the backend
type Assessor interface {
	Assess(ctx context.Context, patientID string) (*models.Assessment, error)
}

// Recorder stores completed assessments
type Recorder interface {
	Record(ctx context.Context, a models.Assessment) error
}

// Runner submits patient ids and records the results
type Runner struct {
	backend  Assessor
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner creates a runner. recorder may be nil.
func NewRunner(backend Assessor, recorder Recorder, logger *zap.Logger) *Runner {
	return &Runner{
		backend:  backend,
		recorder: recorder,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Run assesses patientID. A failure to record the result is logged, not returned.
func (r *Runner) Run(ctx context.Context, patientID string) (*models.Assessment, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, ErrEmptyPatientID
	}

	result, err := r.backend.Assess(ctx, patientID)
	if err != nil {
		r.logger.Warn("assessment failed", zap.String("patient_id", patientID), zap.Error(err))
		return nil, err
	}
	result.PatientID = patientID
	result.RanAt = r.now()

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, *result); err != nil {
			r.logger.Warn("failed to record assessment", zap.String("patient_id", patientID), zap.Error(err))
		}
	}
	r.logger.Info("assessment completed", zap.String("patient_id", patientID), zap.String("label", result.Label))
	return result, nil
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	urgentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	routineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Format renders an assessment: label, reasoning, then one line per citation
func Format(a models.Assessment) string {
	var s strings.Builder

	labelStyle := routineStyle
	if a.IsUrgent() {
		labelStyle = urgentStyle
	}

	s.WriteString(headerStyle.Render("Assessment Result") + "\n")
	if a.PatientID != "" {
		s.WriteString(mutedStyle.Render("Patient: "+a.PatientID) + "\n")
	}
	s.WriteString(labelStyle.Render(a.Label) + "\n\n")

	s.WriteString(headerStyle.Render("Reasoning") + "\n")
	s.WriteString(a.Reasoning + "\n")

	if len(a.Citations) > 0 {
		s.WriteString("\n" + headerStyle.Render("Citations") + "\n")
		for _, c := range a.Citations {
			s.WriteString(fmt.Sprintf("  • %s\n", c))
		}
	}
	return s.String()
}
