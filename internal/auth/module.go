package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// Result is the tri-state outcome of an interactive Authenticate call.
type Result interface {
	isResult()
}

// ResultSuccess means the backend completed the login and already
// called SaveSuccess.
type ResultSuccess struct{}

// ResultCancelled means the user backed out of this backend's flow.
type ResultCancelled struct{}

// ResultResponse means the backend is mid-flow; the caller must send
// the carried response verbatim (a login form, a redirect upstream).
type ResultResponse struct {
	Respond func(c *gin.Context)
}

func (ResultSuccess) isResult()   {}
func (ResultCancelled) isResult() {}
func (ResultResponse) isResult()  {}

// APIResult is the outcome of the non-interactive variant.
type APIResult interface {
	isAPIResult()
}

type APISuccess struct{}

type APIFailure struct{}

// APIPartial supports multi-step machine flows: State must be echoed
// back by the client on its next call.
type APIPartial struct {
	State map[string]string
}

func (APISuccess) isAPIResult() {}
func (APIFailure) isAPIResult() {}
func (APIPartial) isAPIResult() {}

// SelectInfo describes a backend on the module-selection screen.
type SelectInfo struct {
	Text  string
	Image string
	URL   string
}

// Module is the capability contract every pluggable authentication
// backend implements. Methods that reveal identity data return
// ErrUnauthorized when the backend is not logged in for the current
// transaction and ErrUnknownAttribute when it has no mapping.
type Module interface {
	Name() string
	SelectInfo(url string) SelectInfo

	// LoggedIn reports whether this request already carries valid
	// proof of authentication, either live in the transaction or via
	// a verified auth-session continuation cookie.
	LoggedIn(trc *transaction.Context) bool

	Username(trc *transaction.Context) (string, error)
	Attribute(trc *transaction.Context, attr Attribute) (string, error)
	Attributes(trc *transaction.Context, attrs []Attribute) map[Attribute]string
	Groups(trc *transaction.Context) ([]string, error)
	CLAs(trc *transaction.Context) ([]string, error)

	UsedMultiFactor(trc *transaction.Context) bool
	UsedMultiFactorPhysical(trc *transaction.Context) bool
	UsedPhishingResistant(trc *transaction.Context) bool

	// Authenticate drives this backend's own login flow, possibly
	// across several requests. On success the backend has already
	// stored the result via SaveSuccess before returning.
	Authenticate(trc *transaction.Context, loginTarget, formURL string, requested []Attribute) Result

	// AuthenticateAPI is the non-interactive variant for machine
	// clients.
	AuthenticateAPI(trc *transaction.Context, values map[string]string) APIResult

	// AllowsEmailAuthDomain filters which backends are offered for a
	// claimed email address.
	AllowsEmailAuthDomain(domain string) bool

	// WillingToSignForEmail authorizes attribute issuance scoped to
	// one email identity. ErrUnauthorized when not logged in; an
	// error on malformed email.
	WillingToSignForEmail(trc *transaction.Context, email string) (bool, error)
}

// BestEffortAttributes gathers the requested attributes, silently
// omitting entries the backend cannot produce.
func BestEffortAttributes(m Module, trc *transaction.Context, attrs []Attribute) map[Attribute]string {
	values := map[Attribute]string{}
	for _, attr := range attrs {
		v, err := m.Attribute(trc, attr)
		if err != nil {
			continue
		}
		values[attr] = v
	}
	return values
}
