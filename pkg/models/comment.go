package models

import "time"

// Reply is one entry in a comment's ordered reply thread.
type Reply struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Comment is a user comment on a media item. MediaID is a cache relation,
// not ownership. Likes holds each liker address at most once. Comments are
// only ever mutated by like/reply appends in this core.
type Comment struct {
	ID        string    `json:"id"`
	MediaID   string    `json:"media_id"`
	Address   string    `json:"address"`
	Content   string    `json:"content"`
	Likes     []string  `json:"likes"`
	Replies   []Reply   `json:"replies"`
	Timestamp time.Time `json:"timestamp"`
}
