package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rahullym/GMBpro/internal/domain"
)

// QueryService is the cached read side for the API.
type QueryService struct {
	reviews  domain.ReviewRepository
	replies  domain.ReplyRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(reviews domain.ReviewRepository, replies domain.ReplyRepository, cache domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{reviews: reviews, replies: replies, cache: cache, cacheTTL: ttl}
}

func reviewCacheKey(id string) string { return "review:" + id }

func reviewsCacheKey(locationID string, limit int, sort string) string {
	return fmt.Sprintf("reviews:%s:%d:%s", locationID, limit, sort)
}

type ReviewDetail struct {
	Review  domain.Review
	Replies []domain.Reply
}

func (s *QueryService) GetReview(ctx context.Context, id string) (ReviewDetail, error) {
	key := reviewCacheKey(id)
	var out ReviewDetail
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rv, err := s.reviews.GetReview(ctx, id)
	if err != nil {
		return ReviewDetail{}, err
	}
	rps, err := s.replies.ListReplies(ctx, id)
	if err != nil {
		return ReviewDetail{}, err
	}
	out = ReviewDetail{Review: rv, Replies: rps}
	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

func (s *QueryService) ListReviews(ctx context.Context, locationID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	key := reviewsCacheKey(locationID, pg.Limit, pg.Sort)
	var out domain.ReviewsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	page, err := s.reviews.ListReviews(ctx, locationID, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy the slice to avoid aliasing the repo's backing array
	cp := deepCopyReviewsPage(page)

	// size guard before caching
	if b, _ := json.Marshal(cp); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	}
	return cp, nil
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{NextCursor: in.NextCursor}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}
