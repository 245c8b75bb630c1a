// Package social runs the viewer's feed, post, comment and follow actions
// against the FitGram API and keeps the resulting view state.
package social

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/stream"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultPageSize = 10

// Viewer is the signed-in user an action runs for.
type Viewer struct {
	ID  string
	API *apiclient.Caller
}

// Publisher receives post updates once the API has confirmed them.
type Publisher interface {
	Publish(ctx context.Context, viewerID string, ev stream.Event) error
}

type Config struct {
	Views  ViewStore
	Events Publisher
	Logger *logrus.Logger
}

type Service struct {
	views    ViewStore
	controls *Controls
	events   Publisher
	log      *logrus.Entry
	now      func() time.Time
	newID    func() string

	// viewMu serialises read-modify-write of stored views. Network calls
	// never run under it.
	viewMu sync.Mutex
}

func NewService(cfg Config) *Service {
	views := cfg.Views
	if views == nil {
		views = NewMemoryViewStore(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		views:    views,
		controls: NewControls(),
		events:   cfg.Events,
		log:      logger.WithField("component", "social"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type toggleResult struct {
	Liked *bool `json:"liked"`
	Saved *bool `json:"saved"`
}

type followResult struct {
	Status FollowStatus `json:"status"`
}

type profileResult struct {
	Profile      ProfileSummary `json:"profile"`
	Posts        []Post         `json:"posts"`
	FollowStatus FollowStatus   `json:"followStatus"`
}

// LoadFeed fetches the first feed page and the story bar, replacing the
// stored feed view.
func (s *Service) LoadFeed(ctx context.Context, v Viewer, limit int) (FeedView, error) {
	page, err := apiclient.Call[FeedPage](ctx, v.API, http.MethodGet, feedPath("", limit), nil)
	if err != nil {
		return FeedView{}, err
	}
	stories, err := apiclient.Call[[]Story](ctx, v.API, http.MethodGet, "/social/stories", nil)
	if err != nil {
		return FeedView{}, err
	}

	view := FeedView{
		Posts:     page.Posts,
		Stories:   stories,
		Cursor:    page.NextCursor,
		Exhausted: page.NextCursor == "",
	}
	s.viewMu.Lock()
	s.save(ctx, feedKey(v.ID), view)
	s.refreshDetails(ctx, v.ID, page.Posts)
	s.viewMu.Unlock()
	return view, nil
}

// LoadMore appends the next cursor page to the stored feed, skipping posts
// already shown.
func (s *Service) LoadMore(ctx context.Context, v Viewer, limit int) (FeedView, error) {
	var view FeedView
	if !s.load(ctx, feedKey(v.ID), &view) {
		return s.LoadFeed(ctx, v, limit)
	}
	if view.Exhausted {
		return view, nil
	}

	release, ok := s.controls.Acquire(v.ID, "feed-more", "")
	if !ok {
		return FeedView{}, ErrBusy
	}
	defer release()

	page, err := apiclient.Call[FeedPage](ctx, v.API, http.MethodGet, feedPath(view.Cursor, limit), nil)
	if err != nil {
		return FeedView{}, err
	}

	updated, found := s.updateFeed(ctx, v.ID, func(f *FeedView) {
		f.Posts = mergePage(f.Posts, page.Posts)
		f.Cursor = page.NextCursor
		f.Exhausted = page.NextCursor == ""
	})
	s.viewMu.Lock()
	s.refreshDetails(ctx, v.ID, page.Posts)
	s.viewMu.Unlock()
	if !found {
		view.Posts = mergePage(view.Posts, page.Posts)
		view.Cursor = page.NextCursor
		view.Exhausted = page.NextCursor == ""
		return view, nil
	}
	return updated, nil
}

// GetPost fetches one post and reconciles the stored copies with it.
func (s *Service) GetPost(ctx context.Context, v Viewer, postID string) (Post, error) {
	if strings.TrimSpace(postID) == "" {
		return Post{}, apiclient.Validation("Post id is required.")
	}
	post, err := apiclient.Call[Post](ctx, v.API, http.MethodGet, "/social/posts/"+url.PathEscape(postID), nil)
	if err != nil {
		return Post{}, err
	}

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.save(ctx, postKey(v.ID, postID), post)
	var feed FeedView
	if s.load(ctx, feedKey(v.ID), &feed) {
		for i := range feed.Posts {
			if feed.Posts[i].ID == postID {
				feed.Posts[i] = post
				s.save(ctx, feedKey(v.ID), feed)
				break
			}
		}
	}
	return post, nil
}

func (s *Service) CreatePost(ctx context.Context, v Viewer, in NewPost) (Post, error) {
	in.Caption = strings.TrimSpace(in.Caption)
	if in.Caption == "" && len(in.Media) == 0 {
		return Post{}, apiclient.Validation("Add a caption or an image.")
	}
	switch in.Visibility {
	case "":
		in.Visibility = VisibilityPublic
	case VisibilityPublic, VisibilityFollowers:
	default:
		return Post{}, apiclient.Validation("Visibility must be public or followers.")
	}
	for i, m := range in.Media {
		if strings.TrimSpace(m.URL) == "" {
			return Post{}, apiclient.Validation("Every media item needs a URL.")
		}
		if m.Type == "" {
			in.Media[i].Type = "image"
		}
	}
	in.Hashtags = normalizeHashtags(in.Caption, in.Hashtags)

	post, err := apiclient.Call[Post](ctx, v.API, http.MethodPost, "/social/posts", in)
	if err != nil {
		return Post{}, err
	}
	s.updateFeed(ctx, v.ID, func(f *FeedView) {
		f.Posts = appendUnique([]Post{post}, f.Posts)
	})
	return post, nil
}

func (s *Service) CreateStory(ctx context.Context, v Viewer, in NewStory) (Story, error) {
	if strings.TrimSpace(in.Media.URL) == "" {
		return Story{}, apiclient.Validation("A story needs an image or video.")
	}
	if in.Media.Type == "" {
		in.Media.Type = "image"
	}
	in.Caption = strings.TrimSpace(in.Caption)

	story, err := apiclient.Call[Story](ctx, v.API, http.MethodPost, "/social/stories", in)
	if err != nil {
		return Story{}, err
	}
	s.updateFeed(ctx, v.ID, func(f *FeedView) {
		f.Stories = append([]Story{story}, f.Stories...)
	})
	return story, nil
}

func (s *Service) ToggleLike(ctx context.Context, v Viewer, postID string) (Post, error) {
	return s.toggle(ctx, v, postID, "like", "/social/posts/like",
		func(p Post) bool { return p.LikedBy(v.ID) },
		func(p *Post, on bool) { p.LikerIDs = setMember(p.LikerIDs, v.ID, on) },
		func(r toggleResult) *bool { return r.Liked },
	)
}

func (s *Service) ToggleSave(ctx context.Context, v Viewer, postID string) (Post, error) {
	return s.toggle(ctx, v, postID, "save", "/social/posts/save",
		func(p Post) bool { return p.SavedBy(v.ID) },
		func(p *Post, on bool) { p.SaverIDs = setMember(p.SaverIDs, v.ID, on) },
		func(r toggleResult) *bool { return r.Saved },
	)
}

func (s *Service) toggle(
	ctx context.Context,
	v Viewer,
	postID, action, path string,
	member func(Post) bool,
	set func(*Post, bool),
	echo func(toggleResult) *bool,
) (Post, error) {
	if strings.TrimSpace(postID) == "" {
		return Post{}, apiclient.Validation("Post id is required.")
	}
	release, ok := s.controls.Acquire(v.ID, action, postID)
	if !ok {
		return Post{}, ErrBusy
	}
	defer release()

	post, err := s.currentPost(ctx, v, postID)
	if err != nil {
		return Post{}, err
	}

	var res toggleResult
	if err := v.API.Post(ctx, path, map[string]string{"postId": postID}, &res); err != nil {
		return Post{}, err
	}

	on := !member(post)
	if flag := echo(res); flag != nil {
		on = *flag
	}
	updated := s.mutatePost(ctx, v.ID, post, func(p *Post) { set(p, on) })
	s.publish(ctx, v.ID, updated)
	return updated, nil
}

// AddComment shows a provisional comment while the request is in flight and
// replaces it with the server's echo, or drops it on failure.
func (s *Service) AddComment(ctx context.Context, v Viewer, postID, text string) (Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Post{}, apiclient.Validation("Comment cannot be empty.")
	}
	if strings.TrimSpace(postID) == "" {
		return Post{}, apiclient.Validation("Post id is required.")
	}
	release, ok := s.controls.Acquire(v.ID, "comment", postID)
	if !ok {
		return Post{}, ErrBusy
	}
	defer release()

	post, err := s.currentPost(ctx, v, postID)
	if err != nil {
		return Post{}, err
	}

	provisional := Comment{
		ID:        s.newID(),
		AuthorRef: v.ID,
		Text:      text,
		CreatedAt: s.now().UTC(),
		Pending:   true,
	}
	s.mutatePost(ctx, v.ID, post, func(p *Post) { p.Comments = putComment(p.Comments, provisional.ID, provisional) })

	echo, err := apiclient.Call[Comment](ctx, v.API, http.MethodPost, "/social/posts/comment", map[string]string{
		"postId": postID,
		"text":   text,
	})
	if err != nil {
		s.mutatePost(ctx, v.ID, post, func(p *Post) { p.Comments = dropComment(p.Comments, provisional.ID) })
		return Post{}, err
	}

	confirmed := confirmComment(provisional, echo)
	updated := s.mutatePost(ctx, v.ID, post, func(p *Post) { p.Comments = putComment(p.Comments, provisional.ID, confirmed) })
	s.publish(ctx, v.ID, updated)
	return updated, nil
}

// Profile loads a profile page with the viewer's follow status.
func (s *Service) Profile(ctx context.Context, v Viewer, targetID string) (ProfileView, error) {
	if strings.TrimSpace(targetID) == "" {
		return ProfileView{}, apiclient.Validation("Profile id is required.")
	}
	res, err := apiclient.Call[profileResult](ctx, v.API, http.MethodGet, "/social/profile/"+url.PathEscape(targetID), nil)
	if err != nil {
		return ProfileView{}, err
	}

	view := ProfileView{Profile: res.Profile, Posts: res.Posts, Status: normalizeStatus(res.FollowStatus)}
	if targetID == v.ID {
		view.Status = FollowNone
	}
	s.viewMu.Lock()
	s.save(ctx, profileKey(v.ID, targetID), view)
	s.viewMu.Unlock()
	return view, nil
}

// Follow moves none to pending, or to accepted when the API says the target
// auto-accepts.
func (s *Service) Follow(ctx context.Context, v Viewer, targetID string) (FollowStatus, error) {
	if strings.TrimSpace(targetID) == "" {
		return "", apiclient.Validation("Profile id is required.")
	}
	if targetID == v.ID {
		return "", apiclient.Validation("You cannot follow yourself.")
	}
	release, ok := s.controls.Acquire(v.ID, "follow", targetID)
	if !ok {
		return "", ErrBusy
	}
	defer release()

	current, err := s.followStatus(ctx, v, targetID)
	if err != nil {
		return "", err
	}
	switch current {
	case FollowPending:
		return current, apiclient.Validation("Follow request already sent.")
	case FollowAccepted:
		return current, apiclient.Validation("You already follow this profile.")
	}

	res, err := apiclient.Call[followResult](ctx, v.API, http.MethodPost, "/social/follow", map[string]string{"targetId": targetID})
	if err != nil {
		return current, err
	}
	next := FollowPending
	if res.Status == FollowAccepted {
		next = FollowAccepted
	}

	s.updateProfile(ctx, v.ID, targetID, func(p *ProfileView) {
		p.Status = next
		if next == FollowAccepted {
			p.Profile.Followers++
		}
	})
	s.log.WithFields(logrus.Fields{"viewer": v.ID, "target": targetID, "status": next}).Debug("follow")
	return next, nil
}

// Unfollow cancels a pending request or ends an accepted follow.
func (s *Service) Unfollow(ctx context.Context, v Viewer, targetID string) (FollowStatus, error) {
	if strings.TrimSpace(targetID) == "" {
		return "", apiclient.Validation("Profile id is required.")
	}
	release, ok := s.controls.Acquire(v.ID, "follow", targetID)
	if !ok {
		return "", ErrBusy
	}
	defer release()

	current, err := s.followStatus(ctx, v, targetID)
	if err != nil {
		return "", err
	}
	if current == FollowNone {
		return current, apiclient.Validation("You are not following this profile.")
	}

	if err := v.API.Post(ctx, "/social/unfollow", map[string]string{"targetId": targetID}, nil); err != nil {
		return current, err
	}
	s.updateProfile(ctx, v.ID, targetID, func(p *ProfileView) {
		if p.Status == FollowAccepted && p.Profile.Followers > 0 {
			p.Profile.Followers--
		}
		p.Status = FollowNone
	})
	return FollowNone, nil
}

// FollowRequests loads the requests other users sent to the viewer.
func (s *Service) FollowRequests(ctx context.Context, v Viewer) (RequestsView, error) {
	pending, err := apiclient.Call[[]FollowRequest](ctx, v.API, http.MethodGet, "/social/follow/requests", nil)
	if err != nil {
		return RequestsView{}, err
	}

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	var view RequestsView
	s.load(ctx, requestsKey(v.ID), &view)
	view.Pending = pending
	s.save(ctx, requestsKey(v.ID), view)
	return view, nil
}

func (s *Service) AcceptRequest(ctx context.Context, v Viewer, followerID string) (RequestsView, error) {
	return s.answerRequest(ctx, v, followerID, true)
}

func (s *Service) RejectRequest(ctx context.Context, v Viewer, followerID string) (RequestsView, error) {
	return s.answerRequest(ctx, v, followerID, false)
}

func (s *Service) answerRequest(ctx context.Context, v Viewer, followerID string, accept bool) (RequestsView, error) {
	if strings.TrimSpace(followerID) == "" {
		return RequestsView{}, apiclient.Validation("Follower id is required.")
	}
	release, ok := s.controls.Acquire(v.ID, "request", followerID)
	if !ok {
		return RequestsView{}, ErrBusy
	}
	defer release()

	var view RequestsView
	if !s.load(ctx, requestsKey(v.ID), &view) {
		fetched, err := s.FollowRequests(ctx, v)
		if err != nil {
			return RequestsView{}, err
		}
		view = fetched
	}
	if !hasRequest(view.Pending, followerID) {
		return view, apiclient.Validation("That follow request no longer exists.")
	}

	path := "/social/follow/reject"
	if accept {
		path = "/social/follow/accept"
	}
	if err := v.API.Post(ctx, path, map[string]string{"followerId": followerID}, nil); err != nil {
		return view, err
	}

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.load(ctx, requestsKey(v.ID), &view)
	view.Pending = dropRequest(view.Pending, followerID)
	if accept {
		view.Accepted = setMember(view.Accepted, followerID, true)
	}
	s.save(ctx, requestsKey(v.ID), view)
	return view, nil
}

// ControlHeld reports whether an action on target is in flight for the
// viewer.
func (s *Service) ControlHeld(viewerID, action, target string) bool {
	return s.controls.Held(viewerID, action, target)
}

func (s *Service) currentPost(ctx context.Context, v Viewer, postID string) (Post, error) {
	var post Post
	if s.load(ctx, postKey(v.ID, postID), &post) {
		return post, nil
	}
	var feed FeedView
	if s.load(ctx, feedKey(v.ID), &feed) {
		for _, p := range feed.Posts {
			if p.ID == postID {
				return p, nil
			}
		}
	}
	return s.GetPost(ctx, v, postID)
}

func (s *Service) followStatus(ctx context.Context, v Viewer, targetID string) (FollowStatus, error) {
	var view ProfileView
	if s.load(ctx, profileKey(v.ID, targetID), &view) {
		return normalizeStatus(view.Status), nil
	}
	fetched, err := s.Profile(ctx, v, targetID)
	if err != nil {
		return "", err
	}
	return fetched.Status, nil
}

// mutatePost applies fn to every stored copy of the post and returns the
// freshest one. base stands in when nothing is stored.
func (s *Service) mutatePost(ctx context.Context, viewerID string, base Post, fn func(*Post)) Post {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	result := base
	fn(&result)

	var feed FeedView
	if s.load(ctx, feedKey(viewerID), &feed) {
		for i := range feed.Posts {
			if feed.Posts[i].ID == base.ID {
				fn(&feed.Posts[i])
				result = feed.Posts[i]
				s.save(ctx, feedKey(viewerID), feed)
				break
			}
		}
	}
	var detail Post
	if s.load(ctx, postKey(viewerID, base.ID), &detail) {
		fn(&detail)
		result = detail
		s.save(ctx, postKey(viewerID, base.ID), detail)
	}
	return result
}

// refreshDetails overwrites the stored detail copies of freshly fetched
// posts so later actions start from the server's membership. The caller
// holds viewMu.
func (s *Service) refreshDetails(ctx context.Context, viewerID string, posts []Post) {
	for _, p := range posts {
		var stale Post
		if s.load(ctx, postKey(viewerID, p.ID), &stale) {
			s.save(ctx, postKey(viewerID, p.ID), p)
		}
	}
}

func (s *Service) updateFeed(ctx context.Context, viewerID string, fn func(*FeedView)) (FeedView, bool) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	var feed FeedView
	if !s.load(ctx, feedKey(viewerID), &feed) {
		return FeedView{}, false
	}
	fn(&feed)
	s.save(ctx, feedKey(viewerID), feed)
	return feed, true
}

func (s *Service) updateProfile(ctx context.Context, viewerID, targetID string, fn func(*ProfileView)) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	var view ProfileView
	if !s.load(ctx, profileKey(viewerID, targetID), &view) {
		view = ProfileView{Profile: ProfileSummary{ID: targetID}, Status: FollowNone}
	}
	fn(&view)
	s.save(ctx, profileKey(viewerID, targetID), view)
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	found, err := s.views.Load(ctx, key, dst)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("load view")
		return false
	}
	return found
}

func (s *Service) save(ctx context.Context, key string, v any) {
	if err := s.views.Save(ctx, key, v); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("save view")
	}
}

func (s *Service) publish(ctx context.Context, viewerID string, p Post) {
	if s.events == nil {
		return
	}
	ev := stream.Event{
		Type:     stream.EventPostUpdated,
		PostID:   p.ID,
		Likes:    len(p.LikerIDs),
		Saves:    len(p.SaverIDs),
		Comments: len(p.Comments),
	}
	if err := s.events.Publish(ctx, viewerID, ev); err != nil {
		s.log.WithError(err).WithField("post", p.ID).Warn("publish post update")
	}
}

func feedPath(cursor string, limit int) string {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	q.Set("limit", strconv.Itoa(limit))
	return "/social/feed?" + q.Encode()
}

func appendUnique(dst, more []Post) []Post {
	seen := make(map[string]struct{}, len(dst)+len(more))
	out := make([]Post, 0, len(dst)+len(more))
	for _, list := range [][]Post{dst, more} {
		for _, p := range list {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// mergePage appends the posts of a new page, replacing already shown posts
// with their fresher copy in place.
func mergePage(shown, page []Post) []Post {
	at := make(map[string]int, len(shown))
	out := append([]Post(nil), shown...)
	for i, p := range out {
		at[p.ID] = i
	}
	for _, p := range page {
		if i, dup := at[p.ID]; dup {
			out[i] = p
			continue
		}
		at[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

// normalizeHashtags merges explicit tags with #words from the caption,
// lowercased and without the leading #.
func normalizeHashtags(caption string, tags []string) []string {
	for _, word := range strings.Fields(caption) {
		if strings.HasPrefix(word, "#") {
			tags = append(tags, word)
		}
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, t := range tags {
		t = strings.ToLower(strings.Trim(strings.TrimSpace(t), "#.,!?"))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeStatus(st FollowStatus) FollowStatus {
	switch st {
	case FollowPending, FollowAccepted:
		return st
	default:
		return FollowNone
	}
}

// putComment replaces the comment with id, or appends c when absent.
func putComment(comments []Comment, id string, c Comment) []Comment {
	for i := range comments {
		if comments[i].ID == id {
			out := append([]Comment(nil), comments...)
			out[i] = c
			return out
		}
	}
	return append(comments, c)
}

func dropComment(comments []Comment, id string) []Comment {
	out := comments[:0:0]
	for _, c := range comments {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// confirmComment fills the gaps of a partial echo from the provisional
// record.
func confirmComment(provisional, echo Comment) Comment {
	confirmed := echo
	if confirmed.ID == "" {
		confirmed.ID = provisional.ID
	}
	if confirmed.AuthorRef == "" {
		confirmed.AuthorRef = provisional.AuthorRef
	}
	if confirmed.Text == "" {
		confirmed.Text = provisional.Text
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = provisional.CreatedAt
	}
	confirmed.Pending = false
	return confirmed
}

func hasRequest(reqs []FollowRequest, followerID string) bool {
	for _, r := range reqs {
		if r.FollowerID == followerID {
			return true
		}
	}
	return false
}

func dropRequest(reqs []FollowRequest, followerID string) []FollowRequest {
	out := reqs[:0:0]
	for _, r := range reqs {
		if r.FollowerID != followerID {
			out = append(out, r)
		}
	}
	return out
}
