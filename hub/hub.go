// Package hub derives the tab bar from the signed-in user's activities and
// loads the screens behind it.
package hub

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"recreo/community"
	"recreo/drawing"
	"recreo/session"
)

// Tab is one entry of the tab bar.
type Tab struct {
	Route string `json:"route" yaml:"route"`
	Title string `json:"title" yaml:"title"`
	Icon  string `json:"icon" yaml:"icon"`
}

const (
	RouteHome      = "index"
	RouteMore      = "more"
	RouteSettings  = "settings"
	RouteAdmin     = "admin"
	RouteDrawing   = "drawing"
	RouteCommunity = "community-sharing"
)

var activityRoutes = []string{"music", "drawing", "books", "journal", "community-sharing", "games"}

var activityIcons = map[string]string{
	"Music":             "musical-notes",
	"Drawing":           "brush",
	"Books":             "book",
	"Journal":           "journal",
	"Community Sharing": "share-social",
}

// Route maps an activity name to its screen route: lower case with the first
// space replaced by a dash.
func Route(activity string) string {
	return strings.Replace(strings.ToLower(activity), " ", "-", 1)
}

// Tabs lists Home, one tab per picked activity with a known route, More,
// Settings and, for admins, Admin.
func Tabs(u session.User) []Tab {
	tabs := []Tab{{Route: RouteHome, Title: "Home", Icon: "home"}}
	seen := make(map[string]struct{})
	for _, activity := range u.Activities {
		route := Route(activity)
		if !slices.Contains(activityRoutes, route) {
			continue
		}
		if _, dup := seen[route]; dup {
			continue
		}
		seen[route] = struct{}{}
		icon, ok := activityIcons[activity]
		if !ok {
			icon = "game-controller"
		}
		tabs = append(tabs, Tab{Route: route, Title: activity, Icon: icon})
	}
	tabs = append(tabs,
		Tab{Route: RouteMore, Title: "More", Icon: "ellipsis-horizontal"},
		Tab{Route: RouteSettings, Title: "Settings", Icon: "settings"},
	)
	if u.IsAdmin() {
		tabs = append(tabs, Tab{Route: RouteAdmin, Title: "Admin", Icon: "shield"})
	}
	return tabs
}

// Users supplies the signed-in user. *session.Manager satisfies it.
type Users interface {
	RequireUser() (session.User, error)
}

// Hub is the signed-in home: the tab bar plus the screens that need data.
type Hub struct {
	users   Users
	feed    *community.Feed
	gallery *drawing.Gallery
}

// New builds a hub. feed and gallery may be nil when their screens are not
// wired.
func New(users Users, feed *community.Feed, gallery *drawing.Gallery) *Hub {
	return &Hub{users: users, feed: feed, gallery: gallery}
}

// Tabs returns the tab bar, or session.ErrSignedOut when nobody is signed
// in.
func (h *Hub) Tabs() ([]Tab, error) {
	u, err := h.users.RequireUser()
	if err != nil {
		return nil, err
	}
	return Tabs(u), nil
}

// Load refreshes the screens whose tabs are visible, concurrently. The loads
// are independent: one screen failing does not cancel the other.
func (h *Hub) Load(ctx context.Context) error {
	tabs, err := h.Tabs()
	if err != nil {
		return err
	}
	var g errgroup.Group
	if h.feed != nil && hasRoute(tabs, RouteCommunity) {
		g.Go(func() error { return h.feed.Refresh(ctx) })
	}
	if h.gallery != nil && hasRoute(tabs, RouteDrawing) {
		g.Go(func() error { return h.gallery.Refresh(ctx) })
	}
	return g.Wait()
}

// Close tears down every screen.
func (h *Hub) Close() {
	if h.feed != nil {
		h.feed.Close()
	}
	if h.gallery != nil {
		h.gallery.Close()
	}
}

func hasRoute(tabs []Tab, route string) bool {
	return slices.ContainsFunc(tabs, func(t Tab) bool { return t.Route == route })
}
