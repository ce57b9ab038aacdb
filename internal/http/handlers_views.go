package httpx

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gatehouse/gatehouse/internal/domain/shell"
	"github.com/gatehouse/gatehouse/internal/http/ui/viewmodel"
)

// Index mounts a fresh view for the browser and renders the full page around its
// current branch. The first paint waits briefly for the initial session lookup so a
// quick answer skips the loading screen.
// GET /.
func (h *UIHandlers) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, router, err := h.Views.Mount(ctx, ClientID(ctx))
	if err != nil {
		h.logger().ErrorContext(ctx, "failed to mount view", "error", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	timer := time.NewTimer(h.readyWait())
	defer timer.Stop()
	select {
	case <-router.Ready():
	case <-timer.C:
	case <-ctx.Done():
		h.Views.Unmount(id)
		return
	}

	data := h.viewPage(r, id, router.View())
	w.Header().Set("Cache-Control", "no-store")
	if err := h.T.RenderFull(w, data); err != nil {
		h.logAndRenderTemplateError(w, r, err, "full page render")
	}
}

// ViewFragment renders the view's current branch.
// GET /views/{id}.
func (h *UIHandlers) ViewFragment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	router, ok := h.lookupView(r, id)
	if !ok {
		h.NotFound(w, r)
		return
	}
	h.renderFragment(w, r, id, router.View())
}

// Navigate switches the signed-in page of a view and returns the updated fragment.
// POST /views/{id}/navigate.
func (h *UIHandlers) Navigate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	router, ok := h.lookupView(r, id)
	if !ok {
		h.NotFound(w, r)
		return
	}

	page, err := shell.ParsePage(r.FormValue("page"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_page", Err: err})
		return
	}

	if navErr := router.Navigate(page); navErr != nil {
		if errors.Is(navErr, shell.ErrUnmounted) {
			h.NotFound(w, r)
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_page", Err: navErr})
		return
	}
	h.renderFragment(w, r, id, router.View())
}

// Stream pushes the view's renders and notices as server-sent events. Closing the
// stream unmounts the view.
// GET /views/{id}/stream.
func (h *UIHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	router, ok := h.lookupView(r, id)
	if !ok {
		h.NotFound(w, r)
		return
	}

	ctx := r.Context()
	stream, err := startSSE(w)
	if err != nil {
		h.logger().ErrorContext(ctx, "streaming unsupported", "view_id", id, "error", err)
		return
	}

	watch := router.Watch()
	defer func() {
		watch.Close()
		h.Views.Unmount(id)
	}()

	ticker := time.NewTicker(h.keepAlive())
	defer ticker.Stop()

	for {
		var sendErr error
		select {
		case <-ctx.Done():
			return
		case v, open := <-watch.Views():
			if !open {
				return
			}
			sendErr = h.sendView(ctx, stream, r, id, v)
		case n, open := <-watch.Notices():
			if !open {
				return
			}
			sendErr = stream.JSON(eventNotice, newToast(n))
		case <-ticker.C:
			sendErr = stream.Comment("keep-alive")
		}
		if sendErr != nil {
			h.logger().DebugContext(ctx, "view stream closed", "view_id", id, "error", sendErr)
			return
		}
	}
}

func (h *UIHandlers) sendView(ctx context.Context, stream *sseStream, r *http.Request, id string, v shell.View) error {
	var buf bytes.Buffer
	if err := h.T.Execute(&buf, "view", h.viewPage(r.WithContext(ctx), id, v)); err != nil {
		return err
	}
	return stream.Event(eventView, strconv.FormatUint(v.Revision, 10), buf.Bytes())
}

// lookupView returns the view only when it belongs to the requesting browser client.
func (h *UIHandlers) lookupView(r *http.Request, id string) (*shell.Router, bool) {
	if id == "" {
		return nil, false
	}
	owner, ok := h.Views.Owner(id)
	if !ok || owner != ClientID(r.Context()) {
		return nil, false
	}
	return h.Views.Get(id)
}

func (h *UIHandlers) renderFragment(w http.ResponseWriter, r *http.Request, id string, v shell.View) {
	w.Header().Set("Cache-Control", "no-store")
	if err := h.T.Render(w, "view", h.viewPage(r, id, v)); err != nil {
		h.logAndRenderTemplateError(w, r, err, "view fragment render")
	}
}

func (h *UIHandlers) viewPage(r *http.Request, id string, v shell.View) viewmodel.ViewPage {
	page := viewmodel.ViewPage{
		Layout: h.buildLayout(r, branchTitle(v.Branch)),
		ViewID: id,
		View:   v,
	}
	if v.Branch != shell.BranchDashboard || v.User == nil || h.Journal == nil {
		return page
	}

	events, err := h.Journal.ListByUser(r.Context(), v.User.ID, recentActivityLimit)
	if err != nil {
		h.logger().WarnContext(r.Context(), "failed to load recent activity",
			"user_id", v.User.ID,
			"error", err,
		)
		page.ActivityUnavailable = true
		return page
	}
	page.Activity = events
	return page
}

func branchTitle(b shell.Branch) string {
	switch b {
	case shell.BranchSignIn:
		return "Sign in"
	case shell.BranchHome:
		return "Home"
	case shell.BranchDashboard:
		return "Dashboard"
	default:
		return ""
	}
}
