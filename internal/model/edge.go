package model

// Follow is a directed edge: FollowerID sees FollowedID's messages on their
// timeline. The pair is the identity of the edge.
type Follow struct {
	FollowerID int64 `json:"followerId" db:"follower_id"`
	FollowedID int64 `json:"followedId" db:"followed_id"`
}

// Like records that UserID liked MessageID.
type Like struct {
	UserID    int64 `json:"userId"    db:"user_id"`
	MessageID int64 `json:"messageId" db:"message_id"`
}
