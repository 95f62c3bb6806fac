package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"curry2cakes/pkg/audit"
)

// sideEffects records ev and publishes payload on subject in the background.
// Failures are logged and never reach the caller.
func (a *API) sideEffects(r *http.Request, ev audit.Event, subject string, payload map[string]any) {
	if a.store.Audit == nil && (a.store.Bus == nil || subject == "") {
		return
	}

	ev.RemoteAddr = r.RemoteAddr
	ev.RequestID = middleware.GetReqID(r.Context())
	ctx := context.WithoutCancel(r.Context())

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()

		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()

		if a.store.Audit != nil {
			if err := a.store.Audit.Record(ctx, ev); err != nil {
				a.logger.Warn().Err(err).Str("action", ev.Action).Msg("audit record failed")
			}
		}
		if a.store.Bus != nil && subject != "" {
			if err := a.store.Bus.Publish(ctx, subject, payload); err != nil {
				a.logger.Warn().Err(err).Str("subject", subject).Msg("publish event failed")
			}
		}
	}()
}
