package domain

import (
	"strings"
	"time"
)

// User is a platform account as the blog API serves it.
// The API is Mongo-backed, hence the "_id" keys.
type User struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserProfile is the current-user view: the account plus its blogs.
type UserProfile struct {
	User
	Blogs []Blog `json:"blogs"`
}

// Blog is a post with its owner embedded by the API.
// Ownership checks compare Blog.User.ID against the session user id.
type Blog struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	User        User      `json:"user"`
}

// Comment belongs to a blog; the API embeds the commenting user.
type Comment struct {
	ID        string    `json:"_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	User      User      `json:"user"`
	BlogID    string    `json:"blog,omitempty"`
}

// Article is a news item from the external news feed.
// The feed returns creator and category as arrays and dates as plain strings.
type Article struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	Creator     []string `json:"creator"`
	Category    []string `json:"category"`
	ImageURL    string   `json:"image_url"`
	PubDate     string   `json:"pubDate"`
}

// Author returns the display author for an article.
func (a Article) Author() string {
	joined := strings.TrimSpace(strings.Join(a.Creator, ", "))
	if joined == "" {
		return "Unknown Author"
	}
	return joined
}

// Published parses the feed's "2006-01-02 15:04:05" timestamps.
// The zero time is returned when the feed omits or mangles the date.
func (a Article) Published() time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", a.PubDate)
	if err != nil {
		return time.Time{}
	}
	return t
}
