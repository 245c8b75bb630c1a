package social

import "time"

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
)

type Media struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type Comment struct {
	ID        string    `json:"id"`
	AuthorRef string    `json:"authorRef"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	// Pending marks a provisional comment awaiting the server echo.
	Pending bool `json:"pending,omitempty"`
}

type Post struct {
	ID         string     `json:"id"`
	AuthorRef  string     `json:"authorRef"`
	Caption    string     `json:"caption"`
	Hashtags   []string   `json:"hashtags"`
	Visibility Visibility `json:"visibility"`
	Media      []Media    `json:"media"`
	LikerIDs   []string   `json:"likerIds"`
	SaverIDs   []string   `json:"saverIds"`
	Comments   []Comment  `json:"comments"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (p Post) LikeCount() int { return len(p.LikerIDs) }

func (p Post) LikedBy(viewerID string) bool { return contains(p.LikerIDs, viewerID) }

func (p Post) SavedBy(viewerID string) bool { return contains(p.SaverIDs, viewerID) }

type Story struct {
	ID        string    `json:"id"`
	AuthorRef string    `json:"authorRef"`
	Media     Media     `json:"media"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type FollowStatus string

const (
	FollowNone     FollowStatus = "none"
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
)

type FollowRequest struct {
	FollowerID string    `json:"followerId"`
	Name       string    `json:"name"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type FeedPage struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"nextCursor"`
}

type ProfileSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
}

type NewPost struct {
	Caption    string     `json:"caption"`
	Hashtags   []string   `json:"hashtags"`
	Visibility Visibility `json:"visibility"`
	Media      []Media    `json:"media"`
}

type NewStory struct {
	Media   Media  `json:"media"`
	Caption string `json:"caption,omitempty"`
}

// FeedView is what the viewer's feed page currently shows.
type FeedView struct {
	Posts   []Post  `json:"posts"`
	Stories []Story `json:"stories"`
	Cursor  string  `json:"cursor"`
	// Exhausted is set once the API returns no further cursor.
	Exhausted bool `json:"exhausted"`
}

// ProfileView is the viewer's view of one profile page.
type ProfileView struct {
	Profile ProfileSummary `json:"profile"`
	Posts   []Post         `json:"posts"`
	Status  FollowStatus   `json:"followStatus"`
}

// RequestsView holds incoming follow requests and the followers accepted
// from it.
type RequestsView struct {
	Pending  []FollowRequest `json:"pending"`
	Accepted []string        `json:"accepted"`
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// setMember returns ids with id present or absent.
func setMember(ids []string, id string, present bool) []string {
	if present {
		if contains(ids, id) {
			return ids
		}
		return append(ids, id)
	}
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
