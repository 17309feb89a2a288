package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rahullym/GMBpro/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// ---- locations ----

func scanLocation(row interface{ Scan(...any) error }) (domain.Location, error) {
	var l domain.Location
	var address, cred sql.NullString
	var lastSync sql.NullTime
	if err := row.Scan(
		&l.ID, &l.BusinessID, &l.PlaceID, &l.Name, &address, &cred,
		&lastSync, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return domain.Location{}, err
	}
	if address.Valid {
		s := address.String
		l.Address = &s
	}
	if cred.Valid {
		s := cred.String
		l.Credential = &s
	}
	if lastSync.Valid {
		t := lastSync.Time
		l.LastSyncAt = &t
	}
	return l, nil
}

func (r *Repo) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx, getLocationSQL, id))
	if err == sql.ErrNoRows {
		return domain.Location{}, domain.ErrNotFound
	}
	return l, err
}

func (r *Repo) ListConnectedLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.db.QueryContext(ctx, listConnectedLocationsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) ClearCredential(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, clearCredentialSQL, id)
	return err
}

func (r *Repo) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, touchLastSyncSQL, at, id)
	return err
}

// ---- reviews ----

func (r *Repo) UpsertReview(ctx context.Context, rv domain.Review) (bool, error) {
	res, err := r.db.ExecContext(ctx, upsertReviewSQL,
		rv.ID,
		rv.LocationID,
		rv.GoogleReviewID,
		rv.Author,
		rv.Rating,
		rv.Text,
		string(rv.Sentiment),
		string(rv.Status),
		rv.CreatedAt,
		rv.IngestedAt,
	)
	if err != nil {
		return false, err
	}
	// MySQL reports 1 affected row for an insert, 2 for an update via the
	// duplicate-key branch, 0 when the update changed nothing.
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanReview(row interface{ Scan(...any) error }) (domain.Review, error) {
	var rv domain.Review
	var sentiment, status string
	if err := row.Scan(
		&rv.ID, &rv.LocationID, &rv.GoogleReviewID, &rv.Author, &rv.Rating,
		&rv.Text, &sentiment, &status, &rv.CreatedAt, &rv.IngestedAt, &rv.UpdatedAt,
	); err != nil {
		return domain.Review{}, err
	}
	rv.Sentiment = domain.Sentiment(sentiment)
	rv.Status = domain.ReviewStatus(status)
	return rv, nil
}

func (r *Repo) GetReview(ctx context.Context, id string) (domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, getReviewSQL, id))
	if err == sql.ErrNoRows {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) ListReviews(ctx context.Context, locationID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	limit := pg.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, listReviewsSQL, locationID, limit)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return domain.ReviewsPage{}, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.ReviewsPage{Items: out}, nil
}

func (r *Repo) ApproveIfPending(ctx context.Context, reviewID string) error {
	_, err := r.db.ExecContext(ctx, approveIfPendingSQL, reviewID)
	return err
}

// ---- replies ----

func (r *Repo) InsertReply(ctx context.Context, rp domain.Reply) error {
	_, err := r.db.ExecContext(ctx, insertReplySQL,
		rp.ID,
		rp.ReviewID,
		string(rp.Voice),
		rp.DraftText,
		valStr(rp.FinalText),
		rp.Escalate,
	)
	return err
}

func scanReply(row interface{ Scan(...any) error }, dsts ...any) (domain.Reply, error) {
	var rp domain.Reply
	var voice string
	var finalText sql.NullString
	var publishedAt sql.NullTime
	args := []any{
		&rp.ID, &rp.ReviewID, &voice, &rp.DraftText, &finalText, &rp.Escalate,
		&rp.Published, &publishedAt, &rp.CreatedAt, &rp.UpdatedAt,
	}
	args = append(args, dsts...)
	if err := row.Scan(args...); err != nil {
		return domain.Reply{}, err
	}
	rp.Voice = domain.Voice(voice)
	if finalText.Valid {
		s := finalText.String
		rp.FinalText = &s
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		rp.PublishedAt = &t
	}
	return rp, nil
}

func (r *Repo) ListReplies(ctx context.Context, reviewID string) ([]domain.Reply, error) {
	rows, err := r.db.QueryContext(ctx, listRepliesSQL, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reply
	for rows.Next() {
		rp, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

func (r *Repo) GetPublishTarget(ctx context.Context, replyID string) (domain.PublishTarget, error) {
	row := r.db.QueryRowContext(ctx, getPublishTargetSQL, replyID)

	var t domain.PublishTarget
	var reviewStatus string
	var address, cred sql.NullString
	var lastSync sql.NullTime
	rp, err := scanReply(row,
		&t.GoogleReviewID, &reviewStatus,
		&t.Location.ID, &t.Location.BusinessID, &t.Location.PlaceID,
		&t.Location.Name, &address, &cred, &lastSync,
		&t.Location.CreatedAt, &t.Location.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.PublishTarget{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PublishTarget{}, err
	}
	t.Reply = rp
	t.ReviewID = rp.ReviewID
	t.ReviewStatus = domain.ReviewStatus(reviewStatus)
	if address.Valid {
		s := address.String
		t.Location.Address = &s
	}
	if cred.Valid {
		s := cred.String
		t.Location.Credential = &s
	}
	if lastSync.Valid {
		ts := lastSync.Time
		t.Location.LastSyncAt = &ts
	}
	return t, nil
}

func (r *Repo) MarkPublished(ctx context.Context, replyID, finalText string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, markPublishedSQL, finalText, at, replyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ---- audit ----

func (r *Repo) Append(ctx context.Context, e domain.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertAuditSQL,
		e.BusinessID,
		e.ActorID,
		e.Action,
		e.EntityType,
		e.EntityID,
		string(details),
		e.CreatedAt,
	)
	return err
}
