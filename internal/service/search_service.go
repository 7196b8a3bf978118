package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ai-restaurant-search-be/internal/dto"
	"ai-restaurant-search-be/internal/model"
	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/internal/repository"
	"ai-restaurant-search-be/pkg/jobstore"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/narrator"
	"ai-restaurant-search-be/pkg/search/results"
)

// ErrSearchNotFound covers both missing and foreign requests.
var ErrSearchNotFound = errors.New("search not found")

// SearchResult is the poll view of a job. Exactly one of Pending, Response and
// Failed is set.
type SearchResult struct {
	Status   jobstore.Status
	Pending  *dto.SearchPendingResponse
	Response json.RawMessage
	Failed   *dto.SearchFailedResponse
}

type ISearchService interface {
	Submit(ctx context.Context, ownerID string, req *dto.SearchRequest) (*dto.SearchAcceptedResponse, error)
	GetResult(ctx context.Context, ownerID, requestID string) (*SearchResult, error)
	History(ctx context.Context, ownerID string, limit, offset int) ([]dto.SearchHistoryResponse, int64, error)
}

type searchService struct {
	jobs             *jobstore.Store
	publisherService IPublisherService
	history          repository.SearchHistoryRepository
	logger           logger.ILogger
}

func NewSearchService(
	jobs *jobstore.Store,
	publisherService IPublisherService,
	history repository.SearchHistoryRepository,
	log logger.ILogger,
) ISearchService {
	return &searchService{
		jobs:             jobs,
		publisherService: publisherService,
		history:          history,
		logger:           log,
	}
}

func (s *searchService) Submit(ctx context.Context, ownerID string, req *dto.SearchRequest) (*dto.SearchAcceptedResponse, error) {
	requestID := uuid.NewString()
	if _, err := s.jobs.Create(ctx, requestID, ownerID, req.Query); err != nil {
		return nil, fmt.Errorf("failed to create search job: %w", err)
	}

	// Must precede queueing: the runner writes the final entry
	if s.history != nil {
		entry := &model.SearchHistory{
			RequestID: requestID,
			OwnerID:   ownerID,
			Query:     req.Query,
			Status:    string(jobstore.StatusPending),
		}
		if err := s.history.Save(ctx, entry); err != nil {
			s.logger.Warn("SearchService", "Failed to record search history", map[string]interface{}{
				"request_id": requestID,
				"error":      err.Error(),
			})
		}
	}

	payload, err := json.Marshal(dto.SearchJobMessage{
		RequestID:    requestID,
		OwnerID:      ownerID,
		Query:        req.Query,
		UserLocation: req.UserLocation,
		UILanguage:   req.UILanguage,
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisherService.Publish(ctx, payload); err != nil {
		// The job must not stay pending forever
		if serr := s.jobs.SetError(ctx, requestID, narrator.CodeInternal, narrator.FailureText(langctx.English, narrator.CodeInternal)); serr != nil {
			s.logger.Error("SearchService", "Failed to fail unqueued job", map[string]interface{}{
				"request_id": requestID,
				"error":      serr.Error(),
			})
		}
		return nil, fmt.Errorf("failed to queue search job: %w", err)
	}

	s.logger.Info("SearchService", "Search submitted", map[string]interface{}{
		"request_id": requestID,
		"owner_id":   ownerID,
	})

	return &dto.SearchAcceptedResponse{
		RequestID: requestID,
		ResultURL: dto.ResultURL(requestID),
	}, nil
}

func (s *searchService) GetResult(ctx context.Context, ownerID, requestID string) (*SearchResult, error) {
	rec, err := s.jobs.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, ErrSearchNotFound
		}
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrSearchNotFound
	}

	switch rec.Status {
	case jobstore.StatusDoneSuccess:
		raw := rec.Result
		if len(raw) == 0 || string(raw) == "null" {
			raw, err = json.Marshal(dto.SearchResponse{
				RequestID: rec.RequestID,
				Query:     rec.Query,
				Results:   []results.Item{},
			})
			if err != nil {
				return nil, err
			}
		}
		return &SearchResult{Status: rec.Status, Response: raw}, nil

	case jobstore.StatusDoneFailed:
		code := rec.ErrorCode
		if code == "" {
			code = narrator.CodeInternal
		}
		message := rec.ErrorMessage
		if message == "" {
			message = narrator.FailureText(langctx.English, code)
		}
		return &SearchResult{
			Status: rec.Status,
			Failed: &dto.SearchFailedResponse{
				RequestID: rec.RequestID,
				Status:    string(rec.Status),
				Code:      code,
				Message:   message,
				Terminal:  true,
			},
		}, nil

	default:
		return &SearchResult{
			Status: rec.Status,
			Pending: &dto.SearchPendingResponse{
				RequestID: rec.RequestID,
				Status:    string(rec.Status),
				Progress:  rec.Progress,
				Stage:     rec.Stage,
			},
		}, nil
	}
}

func (s *searchService) History(ctx context.Context, ownerID string, limit, offset int) ([]dto.SearchHistoryResponse, int64, error) {
	if s.history == nil {
		return []dto.SearchHistoryResponse{}, 0, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.history.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	res := make([]dto.SearchHistoryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, dto.SearchHistoryResponse{
			RequestID:   e.RequestID,
			Query:       e.Query,
			Route:       e.Route,
			Status:      e.Status,
			ResultCount: e.ResultCount,
			ErrorCode:   e.ErrorCode,
			CreatedAt:   e.CreatedAt,
			CompletedAt: e.CompletedAt,
		})
	}
	return res, total, nil
}
