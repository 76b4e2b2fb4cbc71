package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppPort string
	URLRoot string

	SecretKey     string
	CookiesSecure bool

	// Minutes before an untouched transaction's browser cookie expires.
	TransactionsTimeout int
	// Minutes an auth-session continuation stays valid without re-login.
	ReauthTimeout int
	// Minutes between expired-record cleanup sweeps.
	CleanupInterval int

	// postgres, redis or memory
	StoreBackend string

	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string

	// Backend load order. First logged-in backend wins.
	AuthModules []string
	// Subset offered on the selection screen; empty = all loaded.
	AuthModulesListed []string

	// Operator-level trust-root allow/deny lists.
	TrustedRoots    []string
	NonTrustedRoots []string

	EnableTestEndpoint bool

	TemplateDir string

	Local     LocalConfig
	Directory DirectoryConfig
	Proxy     ProxyConfig
	Assertion AssertionConfig
}

// LocalConfig drives the static test backend.
type LocalConfig struct {
	Username         string
	Password         string
	Attributes       map[string]string
	EmailAuthDomains []string
}

// DirectoryConfig drives the database-backed username/password backend.
type DirectoryConfig struct {
	EmailAuthDomains []string
	IgnoreAttributes []string
}

// ProxyConfig drives the federated OIDC proxy backend.
type ProxyConfig struct {
	Issuer            string
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	EmailAuthDomains  []string
	PhishingResistant bool
}

// AssertionConfig drives the external-assertion relay backend.
// Mappings are standard-attribute -> "credential/attribute" paths.
type AssertionConfig struct {
	VerifierURL         string
	SharedSecret        string
	UsernameMapping     string
	AttributeMapping    map[string]string
	AlwaysRetrieve      []string
	RequiredCredentials []string
	KnownCredentials    map[string]string
	EmailAuthDomains    []string
}

func Load() Config {

	cfg := Config{

		AppPort: getenv("APP_PORT", "8088"),
		URLRoot: strings.TrimRight(os.Getenv("URL_ROOT"), "/"),

		SecretKey:     os.Getenv("SECRET_KEY"),
		CookiesSecure: getbool("COOKIES_SECURE", true),

		TransactionsTimeout: getint("TRANSACTIONS_TIMEOUT", 30),
		ReauthTimeout:       getint("REAUTH_TIMEOUT", 30),
		CleanupInterval:     getint("CLEANUP_INTERVAL", 15),

		StoreBackend: getenv("STORE_BACKEND", "postgres"),

		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		AuthModules:       getlist("AUTH_MODULES"),
		AuthModulesListed: getlist("AUTH_MODULES_LISTED"),

		TrustedRoots:    getlist("TRUSTED_ROOTS"),
		NonTrustedRoots: getlist("NON_TRUSTED_ROOTS"),

		EnableTestEndpoint: getbool("ENABLE_TEST_ENDPOINT", false),

		TemplateDir: getenv("TEMPLATE_DIR", "./templates"),

		Local: LocalConfig{
			Username:         getenv("LOCAL_USERNAME", "admin"),
			Password:         os.Getenv("LOCAL_PASSWORD"),
			Attributes:       getmap("LOCAL_ATTRIBUTES"),
			EmailAuthDomains: getlist("LOCAL_EMAIL_AUTH_DOMAINS"),
		},

		Directory: DirectoryConfig{
			EmailAuthDomains: getlist("DIRECTORY_EMAIL_AUTH_DOMAINS"),
			IgnoreAttributes: getlist("DIRECTORY_IGNORE_ATTRIBUTES"),
		},

		Proxy: ProxyConfig{
			Issuer:            os.Getenv("OIDC_ISSUER"),
			ClientID:          os.Getenv("OIDC_CLIENT_ID"),
			ClientSecret:      os.Getenv("OIDC_CLIENT_SECRET"),
			RedirectURL:       os.Getenv("OIDC_REDIRECT_URL"),
			EmailAuthDomains:  getlist("OIDC_EMAIL_AUTH_DOMAINS"),
			PhishingResistant: getbool("OIDC_PHISHING_RESISTANT", false),
		},

		Assertion: AssertionConfig{
			VerifierURL:         os.Getenv("ASSERTION_VERIFIER_URL"),
			SharedSecret:        os.Getenv("ASSERTION_SHARED_SECRET"),
			UsernameMapping:     os.Getenv("ASSERTION_USERNAME_MAPPING"),
			AttributeMapping:    getmap("ASSERTION_ATTRIBUTE_MAPPING"),
			AlwaysRetrieve:      getlist("ASSERTION_ALWAYS_RETRIEVE"),
			RequiredCredentials: getlist("ASSERTION_REQUIRED_CREDENTIALS"),
			KnownCredentials:    getmap("ASSERTION_KNOWN_CREDENTIALS"),
			EmailAuthDomains:    getlist("ASSERTION_EMAIL_AUTH_DOMAINS"),
		},
	}

	return cfg

}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getlist(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getmap parses "k1=v1,k2=v2" environment values.
func getmap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range getlist(key) {
		k, v, ok := strings.Cut(pair, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}
