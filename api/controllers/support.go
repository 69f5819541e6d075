package controllers

import (
	"net/http"

	"github.com/almarky/almarky-backend/api/responses"
	"github.com/almarky/almarky-backend/api/validators"
	"github.com/almarky/almarky-backend/internal/support"
	pkgerrors "github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
)

// SupportChat answers a storefront support question. The service is optional;
// without an API key the endpoint reports the assistant as unavailable.
func SupportChat(svc support.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "support assistant unavailable"))
			return
		}

		var body support.ChatRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reply, err := svc.Chat(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reply)
	}
}
