package orchestrator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/FedOAuth/FedOAuth/internal/auth"
	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

func (o *Orchestrator) RegisterRoutes(r *gin.Engine) {
	r.GET("/", o.viewMain)
	r.GET("/robots.txt", o.viewRobots)
	r.GET("/logout/", o.viewLogout)

	r.GET("/authenticate/", o.viewAuthenticate)
	r.POST("/authenticate/", o.viewAuthenticate)
	r.GET("/authenticate/:module/", o.viewAuthenticateModule)
	r.POST("/authenticate/:module/", o.viewAuthenticateModule)

	r.POST("/api/authenticate/:module/", o.viewAuthenticateAPI)

	if o.enableTestEndpoint {
		r.GET("/test/", o.viewTest)
		r.GET("/test/failure/", o.viewTestFailure)
	}
}

// viewAuthenticate is the module-selection entry point.
func (o *Orchestrator) viewAuthenticate(c *gin.Context) {
	trc := transaction.FromGin(c)

	if !transactionComplete(trc) {
		logger.Info("request without forward routes or login target", nil)
		c.Redirect(http.StatusFound, o.completeURLFor("/", ""))
		return
	}

	urlSuccess := o.forwardURL(trc, keySuccessForward)
	urlFailure := o.forwardURL(trc, keyFailureForward)

	if m := o.registry.FirstLoggedIn(trc); m != nil {
		if trc.Tr().GetBool(keyAlreadyAuthed) {
			// A relying party is bouncing the browser in a loop.
			logger.Warn("authentication loop detected", map[string]any{
				"transaction": trc.ID(),
			})
			c.String(http.StatusConflict,
				"ERROR: You are already authenticated, but still forwarded to authentication system")
			return
		}
		trc.Values()[keyAlreadyAuthed] = true
		if err := trc.Save(); err != nil {
			logger.Error("failed to save transaction", map[string]any{
				"error": err.Error(),
			})
		}
		logger.Debug("redirected to authenticate while already authenticated", nil)
		c.Redirect(http.StatusFound, urlSuccess)
		return
	}

	listed := o.registry.Listed(trc.Tr().GetString(keyEmailAuthDomain))

	cancelled := c.Query("cancel") != "" || c.Query("cancelmodule") != ""

	switch {
	case len(listed) == 1:
		if cancelled {
			logger.Debug("authentication cancelled", nil)
			c.Redirect(http.StatusFound, urlFailure)
			return
		}
		logger.Debug("automatically selecting module", map[string]any{
			"module": listed[0].Name(),
		})
		c.Redirect(http.StatusFound,
			o.completeURLFor("/authenticate/"+listed[0].Name()+"/", trc.ID()))

	case len(listed) == 0:
		if cancelled {
			c.Redirect(http.StatusFound, urlFailure)
			return
		}
		logger.Debug("no listable authentication modules", nil)
		o.renderer.Render(c, http.StatusUnauthorized, "not_authenticated.html", nil)

	default:
		if cancelled {
			c.Redirect(http.StatusFound, urlFailure)
			return
		}
		modules := make([]auth.SelectInfo, 0, len(listed))
		for _, m := range listed {
			modules = append(modules, m.SelectInfo(
				o.completeURLFor("/authenticate/"+m.Name()+"/", trc.ID())))
		}
		o.renderer.Render(c, http.StatusOK, "select_module.html", map[string]any{
			"modules":    modules,
			"cancel_url": o.completeURLFor("/authenticate/", trc.ID(), "cancel", "1"),
		})
	}
}

// viewAuthenticateModule drives one backend's login flow.
func (o *Orchestrator) viewAuthenticateModule(c *gin.Context) {
	trc := transaction.FromGin(c)

	if !transactionComplete(trc) {
		logger.Info("request without forward routes or login target", nil)
		c.Redirect(http.StatusFound, o.completeURLFor("/", ""))
		return
	}

	name := c.Param("module")
	m := o.registry.ByName(name)
	if m == nil {
		logger.Warn("selected module no longer available", map[string]any{
			"module": name,
		})
		c.Redirect(http.StatusFound, o.completeURLFor("/authenticate/", trc.ID()))
		return
	}

	result := m.Authenticate(trc,
		trc.Tr().GetString(keyLoginTarget),
		o.completeURLFor("/authenticate/"+name+"/", ""),
		requestedAttributes(trc))

	switch res := result.(type) {
	case auth.ResultSuccess:
		c.Redirect(http.StatusFound, o.forwardURL(trc, keySuccessForward))
	case auth.ResultCancelled:
		logger.Debug("authentication module cancelled", map[string]any{
			"module": name,
		})
		c.Redirect(http.StatusFound,
			o.completeURLFor("/authenticate/", trc.ID(), "cancelmodule", "1"))
	case auth.ResultResponse:
		res.Respond(c)
	}
}

// viewAuthenticateAPI is the non-interactive variant for machine
// clients. Multi-step flows echo the returned state on the next call.
func (o *Orchestrator) viewAuthenticateAPI(c *gin.Context) {
	trc := transaction.FromGin(c)

	name := c.Param("module")
	m := o.registry.ByName(name)
	if m == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown auth module",
		})
		return
	}

	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request",
		})
		return
	}

	switch res := m.AuthenticateAPI(trc, values).(type) {
	case auth.APISuccess:
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"transaction": trc.ID(),
		})
	case auth.APIFailure:
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "authentication failed",
		})
	case auth.APIPartial:
		state := gin.H{
			"success":     false,
			"transaction": trc.ID(),
		}
		for k, v := range res.State {
			state[k] = v
		}
		c.JSON(http.StatusOK, state)
	}
}

func (o *Orchestrator) forwardURL(trc *transaction.Context, key string) string {
	return o.completeURLFor(trc.Tr().GetString(key), trc.ID())
}
