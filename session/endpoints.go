package session

// Endpoints lists every URL the flow talks to.  Tests point them at an
// httptest server; production code uses DefaultEndpoints.
type Endpoints struct {
	// LoginPage is fetched with ?continue=<LoginContinue>.
	LoginPage     string
	LoginContinue string
	// AccountsOrigin is the Referer of the login page request.
	AccountsOrigin string
	// Beacon is the telemetry URL whose only purpose is the cookie it sets.
	Beacon       string
	Authenticate string
	// Picker is also sent as Referer by the chats and dispatch requests.
	Picker   string
	Chats    string
	Dispatch string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		LoginPage:      "https://accounts.kakao.com/login",
		LoginContinue:  "https://accounts.kakao.com/weblogin/account/info",
		AccountsOrigin: "https://accounts.kakao.com",
		Beacon:         "https://stat.tiara.kakao.com/track?d=%7B%22sdk%22%3A%7B%22type%22%3A%22WEB%22%2C%22version%22%3A%221.1.15%22%7D%7D",
		Authenticate:   "https://accounts.kakao.com/weblogin/authenticate.json",
		Picker:         "https://sharer.kakao.com/talk/friends/picker/link",
		Chats:          "https://sharer.kakao.com/api/talk/chats",
		Dispatch:       "https://sharer.kakao.com/api/talk/message/link",
	}
}

// AuthCookieNames are the cookies a successful authenticate sets.  Send
// cannot succeed without them.
var AuthCookieNames = []string{"_kawlt", "_kawltea", "_karmt", "_karmtea"}
