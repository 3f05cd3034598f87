package models

// UserType distinguishes humans from bot accounts.
type UserType string

const (
	UserTypeUser UserType = "User"
	UserTypeBot  UserType = "Bot"
)

// User is the account behind one or more profiles.
type User struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	FullName  string   `json:"full_name"`
	Type      UserType `json:"type"`
}

// Profile is a user's identity inside one space.
type Profile struct {
	ID           int64   `json:"id"`
	SpaceID      int64   `json:"space_id"`
	Headline     *string `json:"headline,omitempty"`
	ProfileImage *Image  `json:"profile_image,omitempty"`
	// User is nil once the account has been deleted.
	User *User `json:"user,omitempty"`
}

// Image is an uploaded picture.
type Image struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Space is a community directory.
type Space struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ChatParticipant is the flattened view of a membership used by renderers.
type ChatParticipant struct {
	ID                  int64    `json:"id"`
	ProfileID           int64    `json:"profile_id"`
	FullName            string   `json:"full_name"`
	FirstName           string   `json:"first_name"`
	LastName            string   `json:"last_name"`
	UserType            UserType `json:"user_type"`
	Headline            *string  `json:"headline,omitempty"`
	ProfileImage        *Image   `json:"profile_image,omitempty"`
	LatestReadMessageID *int64   `json:"latest_read_message_id"`
}
