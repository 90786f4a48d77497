package web

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-while/go-easyweb/internal/config"
)

const bodyContextKey = "easyweb.body"

// UseBodyParsing parses JSON and urlencoded request bodies into Body(c).
// Bodies above Config.BodyLimit are rejected with 413, malformed ones with 400.
func (s *Server) UseBodyParsing() {
	limit := s.Config.BodyLimit
	if limit <= 0 {
		limit = config.DefaultBodyLimit
	}
	s.Router.Use(bodyParser(limit))
}

func bodyParser(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		mediaType, _, _ := mime.ParseMediaType(c.ContentType())
		if mediaType != gin.MIMEJSON && mediaType != gin.MIMEPOSTForm {
			c.Next()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		body := map[string]any{}

		var err error
		if mediaType == gin.MIMEJSON {
			err = c.ShouldBindJSON(&body)
			if errors.Is(err, io.EOF) {
				err = nil
			}
			if body == nil {
				// a literal null decodes into a nil map
				body = map[string]any{}
			}
		} else if err = c.Request.ParseForm(); err == nil {
			for k, vals := range c.Request.PostForm {
				if len(vals) == 1 {
					body[k] = vals[0]
				} else {
					body[k] = vals
				}
			}
		}

		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				log.Printf("[WEB]: Request body from %s exceeds %d bytes", c.ClientIP(), limit)
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
			return
		}

		c.Set(bodyContextKey, body)
		c.Next()
	}
}

// Body returns the parsed request body, an empty map if there is none
func Body(c *gin.Context) map[string]any {
	if v, ok := c.Get(bodyContextKey); ok {
		if body, ok := v.(map[string]any); ok {
			return body
		}
	}
	return map[string]any{}
}
