package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/render"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// CredentialChecker is the single hook a username/password backend has
// to provide. A nil identity with a nil error means bad credentials.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context, username, password string) (*Identity, error)
}

// UserPassBase implements the form-driven Authenticate flow shared by
// every username/password backend. Credential verification failures
// are logged in detail but shown to the user as a generic message.
type UserPassBase struct {
	Base
	checker  CredentialChecker
	renderer render.Renderer
}

func NewUserPassBase(base Base, checker CredentialChecker, renderer render.Renderer) UserPassBase {
	return UserPassBase{Base: base, checker: checker, renderer: renderer}
}

func (u *UserPassBase) Authenticate(trc *transaction.Context, loginTarget, formURL string, requested []Attribute) Result {
	req := trc.Request()

	username := ""
	forced := false
	if v := trc.Tr().GetString("forced_username"); v != "" {
		forced = true
		username = v
	}

	errMsg := ""
	if req.Method == http.MethodPost {
		if req.PostFormValue("cancel") != "" {
			logger.Debug("login cancelled", map[string]any{"module": u.Name()})
			return ResultCancelled{}
		}

		password := req.PostFormValue("password")
		if (req.PostFormValue("username") == "" && !forced) || password == "" {
			errMsg = "Invalid form submitted"
		} else {
			if !forced {
				username = req.PostFormValue("username")
			}
			id, err := u.checker.CheckCredentials(req.Context(), username, password)
			if err != nil {
				logger.Info("auth error", map[string]any{
					"module": u.Name(), "error": err.Error(),
				})
			}
			if id == nil {
				errMsg = "Invalid username or password"
			} else {
				if err := u.SaveSuccess(trc, id, true); err != nil {
					logger.Error("failed to save login", map[string]any{
						"module": u.Name(), "error": err.Error(),
					})
					errMsg = "Login failed, please try again"
				} else {
					return ResultSuccess{}
				}
			}
		}
	}

	data := map[string]any{
		"username":        username,
		"forced_username": forced,
		"form_url":        formURL,
		"login_target":    loginTarget,
		"transaction":     trc.ID(),
		"error":           errMsg,
	}
	return ResultResponse{Respond: func(c *gin.Context) {
		u.renderer.Render(c, http.StatusOK, "login_form.html", data)
	}}
}

func (u *UserPassBase) AuthenticateAPI(trc *transaction.Context, values map[string]string) APIResult {
	id, err := u.checker.CheckCredentials(trc.Request().Context(),
		values["username"], values["password"])
	if err != nil {
		logger.Info("api auth error", map[string]any{
			"module": u.Name(), "error": err.Error(),
		})
	}
	if id == nil {
		return APIFailure{}
	}
	if err := u.SaveSuccess(trc, id, true); err != nil {
		return APIFailure{}
	}
	return APISuccess{}
}

func (u *UserPassBase) UsedMultiFactor(*transaction.Context) bool         { return false }
func (u *UserPassBase) UsedMultiFactorPhysical(*transaction.Context) bool { return false }
func (u *UserPassBase) UsedPhishingResistant(*transaction.Context) bool   { return false }
