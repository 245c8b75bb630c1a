package social

import (
	"net/http"
	"sync"

	"fitgram/internal/apiclient"
)

// ErrBusy is returned when the same action on the same target is already in
// flight for the viewer.
var ErrBusy = &apiclient.Error{Kind: apiclient.KindValidation, Status: http.StatusConflict, Message: "Please wait, that action is still in progress."}

// Controls tracks which (viewer, action, target) controls are disabled.
type Controls struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewControls() *Controls {
	return &Controls{held: map[string]struct{}{}}
}

// Acquire disables the control. The returned release must be called on
// every path; it is safe to call more than once.
func (c *Controls) Acquire(viewerID, action, target string) (release func(), ok bool) {
	key := viewerID + "|" + action + "|" + target
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.held[key]; busy {
		return func() {}, false
	}
	c.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.held, key)
			c.mu.Unlock()
		})
	}, true
}

// Held reports whether the control is currently disabled.
func (c *Controls) Held(viewerID, action, target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.held[viewerID+"|"+action+"|"+target]
	return busy
}
