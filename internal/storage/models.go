package storage

import "time"

// User is the stored profile of one chat user.
type User struct {
	UserID     string    `json:"user_id"`
	Background string    `json:"background"`
	Interests  []string  `json:"interests"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasBackground reports whether the user has described themselves.
func (u *User) HasBackground() bool {
	return u != nil && u.Background != ""
}

// Turn is one answered question.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats summarizes stored conversations.
type Stats struct {
	TotalUsers      int `json:"total_users"`
	TotalMessages   int `json:"total_messages"`
	ActiveUsersWeek int `json:"active_users_week"`
}
