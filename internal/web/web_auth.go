package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// setSessionCookie writes the encoded session cookie
func setSessionCookie(c *gin.Context, name, value string, maxAge time.Duration) {
	// Detect HTTPS from the current request perspective only
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(c),
		SameSite: http.SameSiteLaxMode, // Works well with reverse proxies
		MaxAge:   int(maxAge.Seconds()),
	}

	http.SetCookie(c.Writer, cookie)
}

// clearSessionCookie deletes the session cookie
func clearSessionCookie(c *gin.Context, name string) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(c),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1, // Delete cookie
	}

	http.SetCookie(c.Writer, cookie)
}
