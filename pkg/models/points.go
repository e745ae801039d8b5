package models

import "time"

// PointsRecord is per-address reputation, created lazily on the first
// point-earning event. All accrual is additive; TotalPoints is kept equal
// to VotePoints + CommentPoints on every write.
type PointsRecord struct {
	Address       string    `json:"address"`
	VotePoints    int64     `json:"vote_points"`
	CommentPoints int64     `json:"comment_points"`
	TotalPoints   int64     `json:"total_points"`
	LastUpdated   time.Time `json:"last_updated"`
}

// ZeroPoints is the default record returned for an address that has not
// earned anything yet.
func ZeroPoints(address string) PointsRecord {
	return PointsRecord{Address: address}
}
