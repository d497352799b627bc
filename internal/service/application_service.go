package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
)

const (
	defaultApplicationPageSize = 20
	maxApplicationPageSize     = 100
)

// ApplicationService accepts new applications and serves them to staff.
type ApplicationService interface {
	Submit(ctx context.Context, req dto.ApplicationSubmitRequest) (dto.ApplicationSubmitResponse, error)
	List(ctx context.Context, req dto.ApplicationListRequest) (dto.ApplicationListResponse, error)
	Get(ctx context.Context, id uint) (dto.ApplicationDetail, error)
}

type applicationService struct {
	applications repository.ApplicationRepository
	notifier     Notifier
	dispatcher   queue.Dispatcher
	validator    *validator.Validate
	policy       *bluemonday.Policy
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewApplicationService constructs the intake service.
func NewApplicationService(applications repository.ApplicationRepository, notifier Notifier, dispatcher queue.Dispatcher, validate *validator.Validate, logger zerolog.Logger) ApplicationService {
	return &applicationService{
		applications: applications,
		notifier:     notifier,
		dispatcher:   dispatcher,
		validator:    validate,
		policy:       bluemonday.StrictPolicy(),
		logger:       logger.With().Str("component", "application_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/screening-api/internal/service/application"),
		now:          time.Now,
	}
}

// Submit stores the application with its pending combinations, then hands prescreening to the queue.
func (s *applicationService) Submit(ctx context.Context, req dto.ApplicationSubmitRequest) (dto.ApplicationSubmitResponse, error) {
	ctx, span := s.tracer.Start(ctx, "application.submit", trace.WithAttributes(attribute.String("application.role_type", req.RoleType)))
	defer span.End()

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.ApplicationSubmitResponse{}, err
	}

	now := s.now().UTC()
	until, err := s.applications.ActiveCooldown(ctx, req.Email, now)
	if err != nil {
		span.RecordError(err)
		return dto.ApplicationSubmitResponse{}, wrapf(err, "check reapplication cooldown")
	}
	if until != nil {
		span.SetStatus(codes.Error, "cooldown active")
		return dto.ApplicationSubmitResponse{}, &CooldownError{Until: until.UTC()}
	}

	application := s.buildApplication(req)
	if application.IsTranslator() {
		application.Combinations = expandCombinations(req.LanguagePairs, req.Domains, req.Services)
	}

	if err := s.applications.Create(ctx, &application); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.ApplicationSubmitResponse{}, wrapf(err, "create application")
	}
	observability.StatusTransitions().WithLabelValues(models.ApplicationStatusSubmitted).Inc()

	s.logger.Info().
		Uint("application_id", application.ID).
		Str("application_number", application.ApplicationNumber).
		Str("role_type", application.RoleType).
		Int("combinations", len(application.Combinations)).
		Str("email", maskEmailAddress(application.Email)).
		Msg("application received")

	if s.notifier != nil {
		s.notifier.Send(ctx, Notification{
			ApplicationID: application.ID,
			Template:      TemplateApplicationReceived,
			Email:         application.Email,
			Name:          application.FullName,
			Params:        map[string]interface{}{"applicationNumber": application.ApplicationNumber},
		})
	}
	dispatchTask(ctx, s.dispatcher, queue.Task{Kind: queue.KindPrescreen, ApplicationID: application.ID}, s.logger)

	return dto.ApplicationSubmitResponse{
		ID:                application.ID,
		ApplicationNumber: application.ApplicationNumber,
		Status:            application.Status,
		Combinations:      len(application.Combinations),
	}, nil
}

func (s *applicationService) List(ctx context.Context, req dto.ApplicationListRequest) (dto.ApplicationListResponse, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultApplicationPageSize
	}
	if pageSize > maxApplicationPageSize {
		pageSize = maxApplicationPageSize
	}

	items, total, err := s.applications.List(ctx, repository.ApplicationFilter{
		Status:   strings.TrimSpace(req.Status),
		RoleType: strings.TrimSpace(req.RoleType),
		Search:   req.Search,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return dto.ApplicationListResponse{}, err
	}

	summaries := make([]dto.ApplicationSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, dto.NewApplicationSummary(item))
	}

	return dto.ApplicationListResponse{
		Items: summaries,
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
		},
	}, nil
}

func (s *applicationService) Get(ctx context.Context, id uint) (dto.ApplicationDetail, error) {
	application, err := s.applications.GetWithCombinations(ctx, id)
	if err != nil {
		return dto.ApplicationDetail{}, mapNotFound(err, ErrApplicationNotFound)
	}
	return dto.NewApplicationDetail(application), nil
}

func (s *applicationService) buildApplication(req dto.ApplicationSubmitRequest) models.Application {
	clean := func(value string) string {
		return strings.TrimSpace(s.policy.Sanitize(value))
	}
	cleanAll := func(values []string) []string {
		if len(values) == 0 {
			return nil
		}
		out := make([]string, 0, len(values))
		for _, value := range values {
			if v := clean(value); v != "" {
				out = append(out, v)
			}
		}
		return out
	}

	certificates := make([]models.Certificate, 0, len(req.Certifications))
	for _, cert := range req.Certifications {
		certificates = append(certificates, models.Certificate{
			Name:          clean(cert.Name),
			CustomName:    clean(cert.CustomName),
			ExpiryDate:    cert.ExpiryDate,
			FileReference: strings.TrimSpace(cert.FileReference),
		})
	}

	application := models.Application{
		RoleType:        req.RoleType,
		Email:           req.Email,
		FullName:        clean(req.FullName),
		Phone:           clean(req.Phone),
		City:            clean(req.City),
		Country:         clean(req.Country),
		LinkedInURL:     strings.TrimSpace(req.LinkedInURL),
		ReferralSource:  clean(req.ReferralSource),
		Notes:           clean(req.Notes),
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
		YearsExperience: req.YearsExperience,
		EducationLevel:  clean(req.EducationLevel),
		Certifications:  certificates,
		CATTools:        cleanAll(req.CATTools),
		RateExpectation: req.RateExpectation,
		Status:          models.ApplicationStatusSubmitted,
	}

	if application.IsTranslator() {
		application.ServicesOffered = cleanAll(req.Services)
		application.Domains = cleanAll(req.Domains)
		return application
	}

	application.CogYearsExperience = req.CogYearsExperience
	application.CogDegreeField = clean(req.CogDegreeField)
	application.CogCredentials = clean(req.CogCredentials)
	application.CogInstrumentTypes = cleanAll(req.CogInstrumentTypes)
	application.CogTherapyAreas = cleanAll(req.CogTherapyAreas)
	application.CogPharmaClients = clean(req.CogPharmaClients)
	application.CogISPORFamiliarity = clean(req.CogISPORFamiliarity)
	application.CogFDAFamiliarity = clean(req.CogFDAFamiliarity)
	application.CogPriorDebriefReports = req.CogPriorDebriefReports
	application.CogNativeLanguage = clean(req.CogNativeLanguage)
	application.CogAvailability = clean(req.CogAvailability)
	return application
}

// expandCombinations builds one pending combination per distinct (pair, domain, service) tuple.
func expandCombinations(pairs []dto.LanguagePair, domains, services []string) []models.TestCombination {
	seen := make(map[string]struct{})
	combinations := make([]models.TestCombination, 0, len(pairs)*len(domains)*len(services))
	for _, pair := range pairs {
		source := strings.ToLower(strings.TrimSpace(pair.Source))
		target := strings.ToLower(strings.TrimSpace(pair.Target))
		for _, domain := range domains {
			for _, service := range services {
				key := source + "|" + target + "|" + domain + "|" + service
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				combinations = append(combinations, models.TestCombination{
					SourceLanguage: source,
					TargetLanguage: target,
					Domain:         domain,
					ServiceType:    service,
					Status:         models.CombinationStatusPending,
				})
			}
		}
	}
	return combinations
}
