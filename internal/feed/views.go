// ABOUTME: Post-level views over feed engines for optimistic mutations.
// ABOUTME: Updates reach both plain posts and boost wrappers, and the accounts that wrote them.
package feed

import (
	"github.com/2389-research/murmur/internal/models"
)

// PostView exposes a post feed to the mutation layer.
type PostView struct {
	engine *Engine[models.Post]
}

// NewPostView wraps a post engine.
func NewPostView(e *Engine[models.Post]) PostView {
	return PostView{engine: e}
}

// FindPost returns the post with id, unwrapping boosts.
func (v PostView) FindPost(id string) (models.Post, bool) {
	p, ok := v.engine.Find(func(p models.Post) bool { return p.Matches(id) })
	if !ok {
		return models.Post{}, false
	}
	return *targetOf(&p, id), true
}

// UpdatePost applies fn to every copy of post id.
func (v PostView) UpdatePost(id string, fn func(*models.Post)) int {
	return v.engine.UpdateWhere(
		func(p models.Post) bool { return p.Matches(id) },
		func(p models.Post) models.Post { return applyTo(p, id, fn) },
	)
}

// RemovePost drops post id and any boosts of it.
func (v PostView) RemovePost(id string) int {
	return v.engine.RemoveWhere(func(p models.Post) bool { return p.Matches(id) })
}

func authoredBy(id string) func(models.Post) bool {
	return func(p models.Post) bool {
		return p.Account.ID == id || (p.Reblog != nil && p.Reblog.Account.ID == id)
	}
}

// FindAccount returns the author with id from any post, boosts included.
func (v PostView) FindAccount(id string) (models.Account, bool) {
	p, ok := v.engine.Find(authoredBy(id))
	if !ok {
		return models.Account{}, false
	}
	if p.Account.ID == id {
		return p.Account, true
	}
	return p.Reblog.Account, true
}

// UpdateAccount applies fn to every copy of the author with id.
func (v PostView) UpdateAccount(id string, fn func(*models.Account)) int {
	return v.engine.UpdateWhere(authoredBy(id), func(p models.Post) models.Post {
		return applyToAuthor(p, id, fn)
	})
}

// NotificationView exposes the posts inside notifications to the mutation layer.
type NotificationView struct {
	engine *Engine[models.Notification]
}

// NewNotificationView wraps a notification engine.
func NewNotificationView(e *Engine[models.Notification]) NotificationView {
	return NotificationView{engine: e}
}

func notificationMatches(id string) func(models.Notification) bool {
	return func(n models.Notification) bool {
		return n.Status != nil && n.Status.Matches(id)
	}
}

// FindPost returns the post with id from any notification carrying it.
func (v NotificationView) FindPost(id string) (models.Post, bool) {
	n, ok := v.engine.Find(notificationMatches(id))
	if !ok {
		return models.Post{}, false
	}
	return *targetOf(n.Status, id), true
}

// UpdatePost applies fn to the post inside every matching notification.
func (v NotificationView) UpdatePost(id string, fn func(*models.Post)) int {
	return v.engine.UpdateWhere(notificationMatches(id), func(n models.Notification) models.Notification {
		status := applyTo(*n.Status, id, fn)
		n.Status = &status
		return n
	})
}

// RemovePost drops notifications about post id.
func (v NotificationView) RemovePost(id string) int {
	return v.engine.RemoveWhere(notificationMatches(id))
}

func notificationInvolves(id string) func(models.Notification) bool {
	return func(n models.Notification) bool {
		return n.Account.ID == id || (n.Status != nil && authoredBy(id)(*n.Status))
	}
}

// FindAccount returns the account with id from any notification.
func (v NotificationView) FindAccount(id string) (models.Account, bool) {
	n, ok := v.engine.Find(notificationInvolves(id))
	if !ok {
		return models.Account{}, false
	}
	if n.Account.ID == id {
		return n.Account, true
	}
	if n.Status.Account.ID == id {
		return n.Status.Account, true
	}
	return n.Status.Reblog.Account, true
}

// UpdateAccount applies fn to the account with id wherever a notification holds it.
func (v NotificationView) UpdateAccount(id string, fn func(*models.Account)) int {
	return v.engine.UpdateWhere(notificationInvolves(id), func(n models.Notification) models.Notification {
		if n.Account.ID == id {
			fn(&n.Account)
		}
		if n.Status != nil {
			status := applyToAuthor(*n.Status, id, fn)
			n.Status = &status
		}
		return n
	})
}

func targetOf(p *models.Post, id string) *models.Post {
	if p.ID != id && p.Reblog != nil && p.Reblog.ID == id {
		return p.Reblog
	}
	return p
}

// applyTo runs fn on a copy of whichever post carries id, leaving the
// engine's previous snapshot untouched.
func applyTo(p models.Post, id string, fn func(*models.Post)) models.Post {
	if p.ID == id {
		fn(&p)
		return p
	}
	if p.Reblog != nil && p.Reblog.ID == id {
		inner := *p.Reblog
		fn(&inner)
		p.Reblog = &inner
	}
	return p
}

// applyToAuthor runs fn on copies of the authors with id.
func applyToAuthor(p models.Post, id string, fn func(*models.Account)) models.Post {
	if p.Account.ID == id {
		fn(&p.Account)
	}
	if p.Reblog != nil && p.Reblog.Account.ID == id {
		inner := *p.Reblog
		fn(&inner.Account)
		p.Reblog = &inner
	}
	return p
}
