package orchestrator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

func errorToString(code string) string {
	switch code {
	case "no-transaction":
		return "Transaction missing"
	case "":
		return ""
	default:
		logger.Debug("unknown error code requested", map[string]any{
			"code": code,
		})
		return ""
	}
}

func (o *Orchestrator) viewMain(c *gin.Context) {
	o.renderer.Render(c, http.StatusOK, "index.html", map[string]any{
		"error": errorToString(c.Query("err")),
	})
}

func (o *Orchestrator) viewRobots(c *gin.Context) {
	// Search robots have nothing to look for here.
	c.String(http.StatusOK, "User-Agent: *\nDisallow: /")
}

func (o *Orchestrator) viewLogout(c *gin.Context) {
	trc := transaction.FromGin(c)

	names := make([]string, 0, len(c.Request.Cookies()))
	for _, ck := range c.Request.Cookies() {
		trc.ClearCookie(ck.Name)
		names = append(names, ck.Name)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "logged_out",
		"cookies_removed": names,
	})
}

// The test endpoints exist to exercise the full login round trip
// without any protocol builder in the way.
func (o *Orchestrator) viewTest(c *gin.Context) {
	out := o.RequireLogin(c, LoginRequest{
		Target:       "test",
		SuccessRoute: "/test/",
		FailureRoute: "/test/failure/",
	})
	if out.RedirectURL != "" {
		c.Redirect(http.StatusFound, out.RedirectURL)
		return
	}

	trc := transaction.FromGin(c)
	username, err := out.Module.Username(trc)
	if err != nil {
		c.String(http.StatusInternalServerError, "could not read username")
		return
	}
	c.String(http.StatusOK, "Success: %s", username)
}

func (o *Orchestrator) viewTestFailure(c *gin.Context) {
	c.String(http.StatusOK, "Failure!")
}
