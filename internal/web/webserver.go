// Package web provides the HTTP server façade of go-easyweb.
//
// A Server wraps a gin engine. Middleware added through the Use* methods
// runs in registration order for every request, including requests no
// explicit route matched, so a typical setup is:
//
//	s := web.NewServer(cfg)
//	s.UseBodyParsing()
//	s.UseDatabase("")
//	s.UseSession("")
//	s.UseTemplates("")
//	s.UseStatic("")
//	s.Use404("")
//	s.Router.GET("/health", ...)
//	s.Listen(ctx, 0)
//
// Explicit routes registered on Router take precedence over views and
// static files. Routes must be registered after the Use* calls, since gin
// only applies middleware to routes added later.
package web
