package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/goji/httpauth"
	"github.com/gorilla/securecookie"
	"github.com/msteinert/pam"
)

const (
	cookieName  = "ipu-monitor"
	cookieValue = "authenticated"
)

// Auth protects the monitor pages: requests log in once with basic
// auth against the system accounts, then carry a secure session cookie.
type Auth struct {
	sc   *securecookie.SecureCookie
	opts httpauth.AuthOptions
}

// NewAuth creates the middleware with fresh random cookie keys, so
// sessions do not survive a server restart.
func NewAuth() Auth {
	return Auth{
		sc: securecookie.New(securecookie.GenerateRandomKey(32),
			securecookie.GenerateRandomKey(32)),
		opts: httpauth.AuthOptions{Realm: "training monitor", AuthFunc: authPam},
	}
}

func (a Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(cookieName); err == nil {
			var value string
			if err = a.sc.Decode(cookieName, cookie.Value, &value); err == nil && value == cookieValue {
				next.ServeHTTP(w, r)
				return
			}
		}
		httpauth.BasicAuth(a.opts)(a.setCookie(next)).ServeHTTP(w, r)
	})
}

func (a Auth) setCookie(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if encoded, err := a.sc.Encode(cookieName, cookieValue); err == nil {
			http.SetCookie(w, &http.Cookie{Name: cookieName, Value: encoded, Path: "/"})
		} else {
			log.Println("error encoding cookie:", err)
		}
		h.ServeHTTP(w, r)
	})
}

func authPam(user, pass string, r *http.Request) bool {
	t, err := pam.StartFunc("", "", func(s pam.Style, msg string) (string, error) {
		switch s {
		case pam.PromptEchoOn:
			return user, nil
		case pam.PromptEchoOff:
			return pass, nil
		}
		return "", errors.New("unexpected style")
	})
	if err != nil {
		log.Println("pam auth error:", err)
		return false
	}
	ok := t.Authenticate(0) == nil
	log.Println("auth", user, ok)
	return ok
}
