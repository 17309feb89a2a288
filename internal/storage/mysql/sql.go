package mysql

const getLocationSQL = `
SELECT id, business_id, google_place_id, name, address, oauth_refresh_token,
       last_sync_at, created_at, updated_at
FROM locations
WHERE id = ?
`

const listConnectedLocationsSQL = `
SELECT id, business_id, google_place_id, name, address, oauth_refresh_token,
       last_sync_at, created_at, updated_at
FROM locations
WHERE oauth_refresh_token IS NOT NULL
ORDER BY id
`

const clearCredentialSQL = `
UPDATE locations
SET oauth_refresh_token = NULL, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

const touchLastSyncSQL = `
UPDATE locations
SET last_sync_at = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

// The unique key on google_review_id makes concurrent ingests collapse onto
// one row: the second writer's INSERT turns into the UPDATE branch. Status is
// deliberately absent from the update list, moderation state survives resyncs.
// Note: `text` is reserved; keep it quoted everywhere.
const upsertReviewSQL = "INSERT INTO reviews\n" +
	"  (id, location_id, google_review_id, author_name, rating, `text`, sentiment, status, created_at, ingested_at)\n" +
	"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)\n" +
	"ON DUPLICATE KEY UPDATE\n" +
	"  author_name = VALUES(author_name),\n" +
	"  rating      = VALUES(rating),\n" +
	"  `text`      = VALUES(`text`),\n" +
	"  sentiment   = VALUES(sentiment),\n" +
	"  updated_at  = CURRENT_TIMESTAMP\n"

const getReviewSQL = "SELECT id, location_id, google_review_id, author_name, rating, `text`, sentiment, status,\n" +
	"       created_at, ingested_at, updated_at\n" +
	"FROM reviews\n" +
	"WHERE id = ?\n"

const listReviewsSQL = "SELECT id, location_id, google_review_id, author_name, rating, `text`, sentiment, status,\n" +
	"       created_at, ingested_at, updated_at\n" +
	"FROM reviews\n" +
	"WHERE location_id = ?\n" +
	"ORDER BY created_at DESC, id DESC\n" +
	"LIMIT ?\n"

const approveIfPendingSQL = `
UPDATE reviews
SET status = 'approved', updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'pending'
`

const insertReplySQL = `
INSERT INTO replies
  (id, review_id, voice, draft_text, final_text, escalate, published, published_at)
VALUES (?, ?, ?, ?, ?, ?, 0, NULL)
`

const listRepliesSQL = `
SELECT id, review_id, voice, draft_text, final_text, escalate, published,
       published_at, created_at, updated_at
FROM replies
WHERE review_id = ?
ORDER BY created_at DESC, id DESC
`

const getPublishTargetSQL = `
SELECT rp.id, rp.review_id, rp.voice, rp.draft_text, rp.final_text, rp.escalate,
       rp.published, rp.published_at, rp.created_at, rp.updated_at,
       rv.google_review_id, rv.status,
       l.id, l.business_id, l.google_place_id, l.name, l.address,
       l.oauth_refresh_token, l.last_sync_at, l.created_at, l.updated_at
FROM replies rp
JOIN reviews rv ON rv.id = rp.review_id
JOIN locations l ON l.id = rv.location_id
WHERE rp.id = ?
`

// The published=0 guard is the single-writer gate for publication; the losing
// writer affects zero rows and treats the call as already_published.
const markPublishedSQL = `
UPDATE replies
SET published = 1, final_text = ?, published_at = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND published = 0
`

const insertAuditSQL = `
INSERT INTO audit_log
  (business_id, actor_id, action, entity_type, entity_id, details, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`
