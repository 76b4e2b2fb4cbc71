// Package orchestrator drives the authentication flow: it records what
// a protocol builder needs, lets the user pick a backend (or picks the
// only eligible one), hands control to that backend's own login flow
// and resumes the original relying-party request once it concludes.
package orchestrator

import (
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/FedOAuth/FedOAuth/internal/auth"
	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/render"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// Transaction keys the orchestrator owns.
const (
	keyLoginTarget     = "login_target"
	keySuccessForward  = "success_forward"
	keyFailureForward  = "failure_forward"
	keyForcedUsername  = "forced_username"
	keyEmailAuthDomain = "email_auth_domain"
	keyRequestedAttrs  = "requested_attributes"
	keyAlreadyAuthed   = "already_authenticated"
)

type Orchestrator struct {
	registry           *auth.Registry
	renderer           render.Renderer
	urlRoot            string
	enableTestEndpoint bool
}

func New(registry *auth.Registry, renderer render.Renderer, urlRoot string, enableTestEndpoint bool) *Orchestrator {
	return &Orchestrator{
		registry:           registry,
		renderer:           renderer,
		urlRoot:            urlRoot,
		enableTestEndpoint: enableTestEndpoint,
	}
}

// LoginRequest is what a protocol response builder must supply before
// it can get an authenticated identity.
type LoginRequest struct {
	// Target is shown to the user ("log in to <target>"), typically
	// the relying party's trust root.
	Target string
	// SuccessRoute and FailureRoute are the paths the browser is sent
	// back to once authentication resolves.
	SuccessRoute string
	FailureRoute string

	ForcedUsername      string
	EmailAuthDomain     string
	RequestedAttributes []auth.Attribute
}

// Outcome is the explicit result of RequireLogin: either an
// authenticated backend, or a redirect the caller must issue.
type Outcome struct {
	Module      auth.Module
	RedirectURL string
}

// RequireLogin returns immediately when any loaded backend already
// reports being logged in (first match in load order wins). Otherwise
// it records the request in the transaction and returns a redirect to
// the module-selection entry point.
func (o *Orchestrator) RequireLogin(c *gin.Context, req LoginRequest) Outcome {
	trc := transaction.FromGin(c)

	if m := o.registry.FirstLoggedIn(trc); m != nil {
		return Outcome{Module: m}
	}

	values := trc.Values()
	values[keyLoginTarget] = req.Target
	values[keySuccessForward] = req.SuccessRoute
	values[keyFailureForward] = req.FailureRoute
	if req.ForcedUsername != "" {
		values[keyForcedUsername] = req.ForcedUsername
	}
	if req.EmailAuthDomain != "" {
		values[keyEmailAuthDomain] = req.EmailAuthDomain
	}
	attrs := make([]string, 0, len(req.RequestedAttributes))
	for _, a := range req.RequestedAttributes {
		attrs = append(attrs, string(a))
	}
	values[keyRequestedAttrs] = attrs

	if err := trc.Save(); err != nil {
		logger.Error("failed to save login request", map[string]any{
			"error": err.Error(),
		})
	}

	return Outcome{RedirectURL: o.completeURLFor("/authenticate/", trc.ID())}
}

// completeURLFor builds a full URL under the configured url root,
// carrying the transaction id when one is given.
func (o *Orchestrator) completeURLFor(path string, trid string, params ...string) string {
	q := url.Values{}
	if trid != "" {
		q.Set(transaction.ParamName, trid)
	}
	for i := 0; i+1 < len(params); i += 2 {
		q.Set(params[i], params[i+1])
	}
	full := o.urlRoot + path
	if encoded := q.Encode(); encoded != "" {
		full += "?" + encoded
	}
	return full
}

func requestedAttributes(trc *transaction.Context) []auth.Attribute {
	raw := trc.Tr().GetStrings(keyRequestedAttrs)
	attrs := make([]auth.Attribute, 0, len(raw))
	for _, a := range raw {
		attrs = append(attrs, auth.Attribute(a))
	}
	return attrs
}

// transactionComplete reports whether the transaction carries
// everything the selection and login routes need.
func transactionComplete(trc *transaction.Context) bool {
	tr := trc.Tr()
	return tr.GetString(keySuccessForward) != "" &&
		tr.GetString(keyFailureForward) != "" &&
		tr.GetString(keyLoginTarget) != ""
}
