package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"time"

	"github.com/HuongNV13/moodle/common/clients"
	"github.com/HuongNV13/moodle/common/config"
	"github.com/HuongNV13/moodle/common/events"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
	"github.com/HuongNV13/moodle/common/oauth"
	"github.com/HuongNV13/moodle/common/worker"
)

// shareTimeout bounds one complete share attempt, packaging and upload
// included
const shareTimeout = 10 * time.Minute

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Consumer-side views of the sender's collaborators, narrowed to what the
// pipeline actually calls
type issuerSource interface {
	GetByID(ctx context.Context, id int64) (*models.Issuer, error)
}

type auditStore interface {
	Insert(ctx context.Context, share *models.ShareProgress) (int64, error)
	UpdateOutcome(ctx context.Context, id int64, status models.ShareStatus, resourceURL string) error
	CountByUser(ctx context.Context, userID int64) (int64, error)
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*models.ShareProgress, error)
}

type resourcePackager interface {
	Package(ctx context.Context, selector models.ResourceSelector) (*models.PackagedResource, error)
}

type policySource interface {
	Allows(ctx context.Context, userID, courseID int64) (bool, error)
}

type uploader interface {
	CreateResource(ctx context.Context, issuer *models.Issuer, blob *models.PackagedResource, meta clients.ResourceMetadata, accessToken string) (clients.UploadResult, error)
}

type tokenSource interface {
	AccessTokenFor(ctx context.Context, issuer *models.Issuer, userID int64) (string, error)
}

type eventSink interface {
	EmitResourceExported(ctx context.Context, event *events.ResourceExported) error
}

// OAuthTokenSource acquires access tokens through the delegated-authorization
// client, completing a pending flow first so a code delivered by the callback
// is exchanged on the next share attempt.
type OAuthTokenSource struct {
	store oauth.SessionStore
	http  *clients.HTTPClient
	log   *logger.Logger
}

// NewOAuthTokenSource creates a token source backed by the session store
func NewOAuthTokenSource(store oauth.SessionStore, httpClient *clients.HTTPClient, log *logger.Logger) *OAuthTokenSource {
	return &OAuthTokenSource{store: store, http: httpClient, log: log}
}

// AccessTokenFor returns a bearer token for the issuer/user pair
func (s *OAuthTokenSource) AccessTokenFor(ctx context.Context, issuer *models.Issuer, userID int64) (string, error) {
	client := oauth.NewClient(issuer, userID, s.store, s.http, s.log)
	if err := client.CompleteFlowIfPending(ctx); err != nil {
		return "", err
	}
	return client.AccessToken(ctx)
}

// ShareOutcome is the caller-visible result of one share attempt
type ShareOutcome struct {
	ShareID     int64              `json:"shareid"`
	Status      models.ShareStatus `json:"status"`
	ResourceURL string             `json:"resourceurl"`
	Warnings    []models.Warning   `json:"warnings,omitempty"`
}

// Sender runs the outbound share pipeline: validate, authorize, package,
// upload, record. Every attempt leaves exactly one audit record regardless of
// where it fails, and every packaged file is deleted before the attempt
// returns.
type Sender struct {
	cfg      *config.Config
	issuers  issuerSource
	courses  courseSource
	audit    auditStore
	packager resourcePackager
	policy   policySource
	uploads  uploader
	tokens   tokenSource
	events   eventSink
	pool     *worker.Pool
	log      *logger.Logger
}

// NewSender creates the share orchestrator
func NewSender(
	cfg *config.Config,
	issuers issuerSource,
	courses courseSource,
	audit auditStore,
	packager resourcePackager,
	policy policySource,
	uploads uploader,
	tokens tokenSource,
	eventSink eventSink,
	pool *worker.Pool,
	log *logger.Logger,
) *Sender {
	return &Sender{
		cfg:      cfg,
		issuers:  issuers,
		courses:  courses,
		audit:    audit,
		packager: packager,
		policy:   policy,
		uploads:  uploads,
		tokens:   tokens,
		events:   eventSink,
		pool:     pool,
		log:      log,
	}
}

// Share runs one attempt to completion and returns its terminal outcome
func (s *Sender) Share(ctx context.Context, userID, issuerID int64, selector models.ResourceSelector, format models.ShareFormat) (*ShareOutcome, error) {
	shareID, err := s.record(ctx, userID, selector)
	if err != nil {
		return nil, err
	}
	return s.perform(ctx, shareID, userID, issuerID, selector, format), nil
}

// ShareAsync records the attempt, queues the pipeline on the worker pool and
// returns immediately with an in-progress outcome. When the pool is
// saturated the attempt runs inline instead of being dropped.
func (s *Sender) ShareAsync(ctx context.Context, userID, issuerID int64, selector models.ResourceSelector, format models.ShareFormat) (*ShareOutcome, error) {
	shareID, err := s.record(ctx, userID, selector)
	if err != nil {
		return nil, err
	}

	job := func(jobCtx context.Context) {
		runCtx, cancel := context.WithTimeout(jobCtx, shareTimeout)
		defer cancel()
		s.perform(runCtx, shareID, userID, issuerID, selector, format)
	}

	if err := s.pool.Submit(job); err != nil {
		s.log.Warn("share pool rejected job, running inline", "share_id", shareID, "error", err)
		return s.perform(ctx, shareID, userID, issuerID, selector, format), nil
	}

	return &ShareOutcome{ShareID: shareID, Status: models.ShareStatusInProgress}, nil
}

// ListProgress returns one page of the user's share history and the total
// number of attempts
func (s *Sender) ListProgress(ctx context.Context, userID int64, page, perPage int) ([]*models.ShareProgress, int64, error) {
	total, err := s.audit.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	shares, err := s.audit.ListByUser(ctx, userID, page*perPage, perPage)
	if err != nil {
		return nil, 0, err
	}

	return shares, total, nil
}

// record inserts the in-progress audit row before any validation runs, so
// even an attempt that fails immediately is visible in the share history
func (s *Sender) record(ctx context.Context, userID int64, selector models.ResourceSelector) (int64, error) {
	share := &models.ShareProgress{
		UserID:      userID,
		Type:        selector.ResourceType(),
		CourseID:    selector.CourseID,
		Status:      models.ShareStatusInProgress,
		TimeCreated: time.Now(),
	}
	if selector.Kind == models.SelectorSingle {
		cmid := selector.CMIDs[0]
		share.CMID = &cmid
	}

	id, err := s.audit.Insert(ctx, share)
	if err != nil {
		return 0, fmt.Errorf("failed to record share attempt: %w", err)
	}
	return id, nil
}

// perform runs the pipeline against an already recorded attempt and always
// drives the record to a terminal status
func (s *Sender) perform(ctx context.Context, shareID, userID, issuerID int64, selector models.ResourceSelector, format models.ShareFormat) *ShareOutcome {
	allowed, err := s.policy.Allows(ctx, userID, selector.CourseID)
	if err != nil {
		s.log.Error("share policy evaluation failed", "share_id", shareID, "error", err)
		return s.fail(ctx, shareID, userID, selector,
			models.WarningSendFailed, s.supportMessage("Something went wrong while sharing to MoodleNet."))
	}
	if !allowed {
		return s.fail(ctx, shareID, userID, selector,
			models.WarningPermission, "You do not have permission to share this content to MoodleNet.")
	}

	if format != models.ShareFormatBackup {
		return s.fail(ctx, shareID, userID, selector,
			models.WarningInvalidFormat, "Invalid share format.")
	}

	issuer, err := s.issuers.GetByID(ctx, issuerID)
	if err != nil || !s.issuerValid(issuer, issuerID) {
		return s.fail(ctx, shareID, userID, selector,
			models.WarningIssuerDisabled, "MoodleNet outbound sharing is not enabled for this site.")
	}

	accessToken, err := s.tokens.AccessTokenFor(ctx, issuer, userID)
	if err != nil {
		s.log.Warn("no usable access token", "share_id", shareID, "issuer_id", issuerID, "error", err)
		return s.fail(ctx, shareID, userID, selector,
			models.WarningOAuthClient, "The OAuth 2 client could not provide an access token.")
	}

	blob, err := s.packager.Package(ctx, selector)
	if errors.Is(err, ErrInvalidSelection) {
		return s.fail(ctx, shareID, userID, selector,
			models.WarningInvalidCMIDs, "Invalid course module IDs.")
	}
	if err != nil {
		s.log.Error("packaging failed", "share_id", shareID, "error", err)
		return s.fail(ctx, shareID, userID, selector,
			models.WarningPackaging, "The content could not be packaged for sharing.")
	}
	defer func() {
		if err := blob.Delete(); err != nil {
			s.log.Warn("failed to delete packaged resource", "share_id", shareID, "error", err)
		}
	}()

	if blob.Size > s.cfg.MoodleNet.MaxUploadBytes {
		return s.fail(ctx, shareID, userID, selector,
			models.WarningFileSizeLimit, "The backup file exceeds the maximum upload size.")
	}

	meta, err := s.resourceMetadata(ctx, selector)
	if err != nil {
		s.log.Error("failed to build resource metadata", "share_id", shareID, "error", err)
		return s.fail(ctx, shareID, userID, selector,
			models.WarningSendFailed, s.supportMessage("Something went wrong while sharing to MoodleNet."))
	}

	result, err := s.uploads.CreateResource(ctx, issuer, blob, meta, accessToken)
	if err != nil {
		s.log.Error("upload request could not be built", "share_id", shareID, "error", err)
		return s.fail(ctx, shareID, userID, selector,
			models.WarningSendFailed, s.supportMessage("Something went wrong while sharing to MoodleNet."))
	}

	switch result.Outcome {
	case clients.OutcomeCreated:
		return s.succeed(ctx, shareID, userID, selector, result.ResourceURL)
	case clients.OutcomeTransportFailure:
		s.log.Warn("upload transport failure", "share_id", shareID, "error", result.Err)
		return s.fail(ctx, shareID, userID, selector,
			models.WarningTransportFailed, "MoodleNet could not be reached. The resource was not sent.")
	default:
		s.log.Warn("upload rejected", "share_id", shareID, "status", result.Status)
		return s.fail(ctx, shareID, userID, selector,
			models.WarningSendFailed, s.supportMessage(fmt.Sprintf("MoodleNet rejected the resource (status %d).", result.Status)))
	}
}

// issuerValid enforces the three-part validity rule: the issuer is enabled,
// speaks the MoodleNet service type, and is the one configured for outbound
// sharing
func (s *Sender) issuerValid(issuer *models.Issuer, requestedID int64) bool {
	return issuer != nil &&
		issuer.Enabled &&
		issuer.ServiceType == models.ServiceTypeMoodleNet &&
		issuer.ID == s.cfg.MoodleNet.OutboundIssuerID &&
		issuer.ID == requestedID
}

// resourceMetadata derives the remote draft's name and description from the
// shared content
func (s *Sender) resourceMetadata(ctx context.Context, selector models.ResourceSelector) (clients.ResourceMetadata, error) {
	if selector.Kind == models.SelectorSingle {
		module, err := s.courses.GetModuleInCourse(ctx, selector.CMIDs[0], selector.CourseID)
		if err != nil {
			return clients.ResourceMetadata{}, err
		}
		return clients.ResourceMetadata{
			Name:        module.Name,
			Description: stripTags(module.Summary),
		}, nil
	}

	course, err := s.courses.GetCourse(ctx, selector.CourseID)
	if err != nil {
		return clients.ResourceMetadata{}, err
	}
	return clients.ResourceMetadata{
		Name:        course.FullName,
		Description: stripTags(course.Summary),
	}, nil
}

func (s *Sender) succeed(ctx context.Context, shareID, userID int64, selector models.ResourceSelector, resourceURL string) *ShareOutcome {
	if err := s.audit.UpdateOutcome(ctx, shareID, models.ShareStatusSent, resourceURL); err != nil {
		s.log.Error("failed to mark share as sent", "share_id", shareID, "error", err)
	}
	s.emit(ctx, userID, selector, resourceURL, true)

	s.log.Info("resource shared", "share_id", shareID, "resource_url", resourceURL)
	return &ShareOutcome{
		ShareID:     shareID,
		Status:      models.ShareStatusSent,
		ResourceURL: resourceURL,
	}
}

func (s *Sender) fail(ctx context.Context, shareID, userID int64, selector models.ResourceSelector, code, message string) *ShareOutcome {
	if err := s.audit.UpdateOutcome(ctx, shareID, models.ShareStatusError, ""); err != nil {
		s.log.Error("failed to mark share as errored", "share_id", shareID, "error", err)
	}
	s.emit(ctx, userID, selector, "", false)

	return &ShareOutcome{
		ShareID: shareID,
		Status:  models.ShareStatusError,
		Warnings: []models.Warning{{
			Item:        strconv.FormatInt(selector.CourseID, 10),
			WarningCode: code,
			Message:     message,
		}},
	}
}

func (s *Sender) emit(ctx context.Context, userID int64, selector models.ResourceSelector, resourceURL string, success bool) {
	err := s.events.EmitResourceExported(ctx, &events.ResourceExported{
		UserID:      userID,
		CourseID:    selector.CourseID,
		CMIDs:       selector.CMIDs,
		ResourceURL: resourceURL,
		Success:     success,
	})
	if err != nil {
		s.log.Warn("failed to emit resource_exported event", "error", err)
	}
}

// supportMessage appends the site's support contact to a failure message when
// one is configured
func (s *Sender) supportMessage(message string) string {
	if s.cfg.MoodleNet.SupportURL == "" {
		return message
	}
	return fmt.Sprintf("%s Contact support: %s", message, s.cfg.MoodleNet.SupportURL)
}

// stripTags reduces an HTML summary to plain text for the remote metadata
func stripTags(in string) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(in, ""))
}
