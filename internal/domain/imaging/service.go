package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
	"github.com/Markitchi/Meda/internal/platform/blobstore"
	"github.com/Markitchi/Meda/internal/platform/notification"
)

// allowedTypes maps a file extension to the content types accepted for it.
// Browsers often send DICOM files as application/octet-stream.
var allowedTypes = map[string]map[string]bool{
	".png":  {"image/png": true},
	".jpg":  {"image/jpeg": true},
	".jpeg": {"image/jpeg": true},
	".dcm":  {"application/dicom": true, "application/octet-stream": true},
}

type PatientLookup interface {
	PatientName(ctx context.Context, patientID uuid.UUID) (string, error)
}

// Notifier delivers templated in-app notifications.
type Notifier interface {
	NotifyTemplate(ctx context.Context, userID string, t notification.Type, data map[string]string) (*notification.Notification, error)
}

type Config struct {
	MaxUploadBytes  int64
	CacheSize       int
	PresignExpiry   time.Duration
	AnalysisTimeout time.Duration
	// FinishTimeout bounds the writes that close an analysis.
	FinishTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 512
	}
	if c.PresignExpiry <= 0 {
		c.PresignExpiry = time.Hour
	}
	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = 2 * time.Minute
	}
	if c.FinishTimeout <= 0 {
		c.FinishTimeout = 5 * time.Second
	}
}

type Service struct {
	images   ImageRepository
	analyses AnalysisRepository
	store    blobstore.Store
	provider diagnosis.ImageFindingProvider
	patients PatientLookup
	notifier Notifier
	cfg      Config
	logger   zerolog.Logger

	// latest completed analysis per image
	cache *lru.Cache[uuid.UUID, *Analysis]
	wg    sync.WaitGroup
	now   func() time.Time
}

// NewService wires the image service. patients and notifier may be nil.
func NewService(images ImageRepository, analyses AnalysisRepository, store blobstore.Store,
	provider diagnosis.ImageFindingProvider, patients PatientLookup, notifier Notifier,
	cfg Config, logger zerolog.Logger) (*Service, error) {
	cfg.defaults()
	cache, err := lru.New[uuid.UUID, *Analysis](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("analysis cache: %w", err)
	}
	return &Service{
		images:   images,
		analyses: analyses,
		store:    store,
		provider: provider,
		patients: patients,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) MaxUploadBytes() int64 { return s.cfg.MaxUploadBytes }

// -- Upload & retrieval --

type UploadInput struct {
	OriginalFilename string
	ContentType      string
	Size             int64
	Content          io.Reader
	ImageType        diagnosis.ImageType
	Modality         *string
	BodyPart         *string
	PatientID        *uuid.UUID
	UserID           string
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func checkFileType(filename, contentType string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	mimes, ok := allowedTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedType, ext)
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !mimes[ct] {
		return "", fmt.Errorf("%w: content type %q for %s", ErrUnsupportedType, contentType, ext)
	}
	return ext, nil
}

func (s *Service) Upload(ctx context.Context, in UploadInput) (*MedicalImage, error) {
	if strings.TrimSpace(in.OriginalFilename) == "" {
		return nil, invalid("filename is required")
	}
	if in.UserID == "" {
		return nil, invalid("uploader is required")
	}
	if !in.ImageType.Valid() {
		return nil, invalid("invalid image_type: %q", in.ImageType)
	}
	ext, err := checkFileType(in.OriginalFilename, in.ContentType)
	if err != nil {
		return nil, err
	}
	if in.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, s.cfg.MaxUploadBytes)
	}
	if in.PatientID != nil && s.patients != nil {
		if _, err := s.patients.PatientName(ctx, *in.PatientID); err != nil {
			if errors.Is(err, diagnosis.ErrNotFound) {
				return nil, ErrPatientNotFound
			}
			return nil, err
		}
	}

	filename := uuid.NewString() + ext
	img := &MedicalImage{
		Filename:         filename,
		OriginalFilename: path.Base(in.OriginalFilename),
		ObjectKey:        "medical_images/" + in.UserID + "/" + filename,
		MimeType:         in.ContentType,
		ImageType:        in.ImageType,
		Modality:         in.Modality,
		BodyPart:         in.BodyPart,
		AnalysisStatus:   StatusPending,
		UserID:           in.UserID,
		PatientID:        in.PatientID,
	}

	info, err := s.store.Put(ctx, img.ObjectKey, in.ContentType, in.Content, in.Size)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	img.FileSize = info.Size

	if err := s.images.Create(ctx, img); err != nil {
		if derr := s.store.Delete(ctx, img.ObjectKey); derr != nil {
			s.logger.Warn().Err(derr).Str("object_key", img.ObjectKey).Msg("orphaned image object")
		}
		return nil, err
	}
	s.logger.Info().
		Str("image_id", img.ID.String()).
		Str("image_type", string(img.ImageType)).
		Int64("size", img.FileSize).
		Msg("image uploaded")
	return img, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicalImage, error) {
	return s.images.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*MedicalImage, int, error) {
	return s.images.List(ctx, f, limit, offset)
}

// DownloadURL returns a presigned link, or blobstore.ErrPresignUnsupported
// when the store can only stream.
func (s *Service) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.store.PresignedURL(ctx, img.ObjectKey, s.cfg.PresignExpiry)
}

// Open streams the stored file. The caller closes the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *MedicalImage, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.store.Get(ctx, img.ObjectKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil, fmt.Errorf("image file missing: %w", ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, img, nil
}

// Delete removes the image record first. A failure to remove the stored
// object afterwards is only logged.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.images.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)
	if err := s.store.Delete(ctx, img.ObjectKey); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Warn().Err(err).Str("object_key", img.ObjectKey).Msg("failed to delete image object")
	}
	return nil
}

// -- Analysis --

func (s *Service) begin(ctx context.Context, imageID uuid.UUID) (*MedicalImage, *Analysis, error) {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, nil, err
	}
	active, err := s.analyses.HasActive(ctx, imageID)
	if err != nil {
		return nil, nil, err
	}
	if active {
		return nil, nil, ErrAnalysisInProgress
	}
	// Concurrent requests can both pass the check above; Create is the
	// authoritative guard.
	a := &Analysis{ImageID: imageID, Status: StatusPending}
	if err := s.analyses.Create(ctx, a); err != nil {
		return nil, nil, err
	}
	if err := s.images.UpdateStatus(ctx, imageID, StatusProcessing, nil, nil); err != nil {
		msg := "Erreur d'analyse: " + err.Error()
		a.Status, a.Recommendations = StatusFailed, &msg
		if uerr := s.analyses.Update(context.WithoutCancel(ctx), a); uerr != nil {
			s.logger.Error().Err(uerr).Str("analysis_id", a.ID.String()).Msg("failed to release analysis")
		}
		return nil, nil, err
	}
	return img, a, nil
}

// Analyze runs the finding provider over an image and waits for the result.
// A provider failure is recorded on the analysis and also returned.
func (s *Service) Analyze(ctx context.Context, imageID uuid.UUID) (*Analysis, error) {
	img, a, err := s.begin(ctx, imageID)
	if err != nil {
		return nil, err
	}
	return a, s.run(ctx, img, a)
}

// StartAnalysis records a pending analysis and runs it in the background.
// The returned value is a snapshot; poll GetAnalysis for the outcome.
func (s *Service) StartAnalysis(ctx context.Context, imageID uuid.UUID) (*Analysis, error) {
	img, a, err := s.begin(ctx, imageID)
	if err != nil {
		return nil, err
	}
	snapshot := *a

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AnalysisTimeout)
		defer cancel()
		_ = s.run(runCtx, img, a)
	}()
	return &snapshot, nil
}

// Wait blocks until background analyses have finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) run(ctx context.Context, img *MedicalImage, a *Analysis) error {
	log := s.logger.With().Str("image_id", img.ID.String()).Str("analysis_id", a.ID.String()).Logger()

	a.Status = StatusProcessing
	if err := s.analyses.Update(ctx, a); err != nil {
		log.Warn().Err(err).Msg("failed to mark analysis processing")
	}

	assessment, err := s.provider.Assess(ctx, img.ImageType, img.bodyPart())

	// The terminal status must be written even when ctx timed out or was
	// cancelled, otherwise the analysis stays active and blocks new runs.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinishTimeout)
	defer cancel()

	if err != nil {
		s.fail(finishCtx, log, img, a, "Erreur d'analyse: "+err.Error())
		log.Warn().Err(err).Msg("image analysis failed")
		return fmt.Errorf("assess image: %w", err)
	}

	done := s.now()
	confidence := assessment.ConfidenceScore
	a.Status = StatusCompleted
	a.ConfidenceScore = &confidence
	a.Findings = assessment
	a.CompletedAt = &done
	if assessment.Recommendations != "" {
		rec := assessment.Recommendations
		a.Recommendations = &rec
	}
	if err := s.analyses.Update(finishCtx, a); err != nil {
		a.ConfidenceScore, a.Findings, a.CompletedAt = nil, nil, nil
		s.fail(finishCtx, log, img, a, "Erreur d'enregistrement: "+err.Error())
		return fmt.Errorf("store analysis: %w", err)
	}
	if err := s.images.UpdateStatus(finishCtx, img.ID, StatusCompleted, &confidence, &done); err != nil {
		return fmt.Errorf("update image status: %w", err)
	}
	cached := *a
	s.cache.Add(img.ID, &cached)

	log.Info().
		Int("pathologies", len(assessment.Pathologies)).
		Float64("confidence", confidence).
		Msg("image analysis completed")

	if s.notifier != nil {
		_, err := s.notifier.NotifyTemplate(finishCtx, img.UserID, notification.TypeAnalysisReady, map[string]string{
			"filename":   img.OriginalFilename,
			"confidence": strconv.Itoa(int(confidence*100+0.5)) + "%",
			"image_id":   img.ID.String(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("analysis notification failed")
		}
	}
	return nil
}

func (s *Service) GetAnalysis(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	return s.analyses.GetByID(ctx, id)
}

func (s *Service) ListAnalyses(ctx context.Context, imageID uuid.UUID) ([]*Analysis, error) {
	if _, err := s.images.GetByID(ctx, imageID); err != nil {
		return nil, err
	}
	return s.analyses.ListByImage(ctx, imageID)
}

// LatestAssessment returns the findings of the most recent completed
// analysis, or nil when the image was never analysed.
func (s *Service) LatestAssessment(ctx context.Context, imageID uuid.UUID) (*diagnosis.ImageAssessment, error) {
	if a, ok := s.cache.Get(imageID); ok {
		return a.Findings, nil
	}
	a, err := s.analyses.LatestCompleted(ctx, imageID)
	if errors.Is(err, ErrAnalysisNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.cache.Add(imageID, a)
	return a.Findings, nil
}

// fail records a failed analysis and image status.
func (s *Service) fail(ctx context.Context, log zerolog.Logger, img *MedicalImage, a *Analysis, msg string) {
	a.Status = StatusFailed
	a.Recommendations = &msg
	if err := s.analyses.Update(ctx, a); err != nil {
		log.Error().Err(err).Msg("failed to record analysis failure")
	}
	if err := s.images.UpdateStatus(ctx, img.ID, StatusFailed, nil, nil); err != nil {
		log.Error().Err(err).Msg("failed to update image status")
	}
}
