package oauth

const (
	FlowAuthCode = "auth_code"

	YandexAuthorizeURL = "https://oauth.yandex.ru/authorize"
	YandexTokenURL     = "https://oauth.yandex.ru/token"
	YandexScope        = "iot:view"
)

// Declaration defines the OAuth contract for a provider.
type Declaration struct {
	Provider     string
	Flow         string
	AuthorizeURL string
	TokenURL     string
	Scope        string
	StatePath    string
}

// Yandex returns the declaration for the Yandex Smart Home API with the
// read-only IoT scope.
func Yandex(statePath string) Declaration {
	return Declaration{
		Provider:     "yandex",
		Flow:         FlowAuthCode,
		AuthorizeURL: YandexAuthorizeURL,
		TokenURL:     YandexTokenURL,
		Scope:        YandexScope,
		StatePath:    statePath,
	}
}
