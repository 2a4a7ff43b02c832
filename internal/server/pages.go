package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ragdesk/ragdesk/internal/store"
)

// Page shells. The console's data comes from /api; these only give each
// route a document to load it into.
var (
	chatPageTmpl = template.Must(template.New("chat").Parse(`<!doctype html>
<html lang="id">
<head><meta charset="utf-8"><title>ragdesk</title></head>
<body>
{{- if .User}}
<header>Signed in as {{.User.Name}} ({{.User.Role}}){{if .Console}} · <a href="/admin">Admin</a>{{end}}
<form method="post" action="/auth/logout" style="display:inline"><button>Sign out</button></form></header>
<main id="chat" data-user-id="{{.User.ID}}"></main>
{{- else}}
<main><a href="/auth/login">Sign in with Microsoft</a></main>
{{- end}}
</body>
</html>
`))

	adminPageTmpl = template.Must(template.New("admin").Parse(`<!doctype html>
<html lang="id">
<head><meta charset="utf-8"><title>{{.Title}} · ragdesk admin</title></head>
<body>
<nav>
{{- if .IsAdmin}}<a href="/admin/users">Users</a> {{end -}}
<a href="/admin/docs">Documents</a> <a href="/admin/chats">Chats</a> <a href="/">Chat</a>
</nav>
<main id="{{.Section}}" data-role="{{.Role}}"><h1>{{.Title}}</h1></main>
</body>
</html>
`))
)

func canUseConsole(role string) bool {
	return role == store.RoleAdmin || role == store.RoleMod
}

// adminPageGate keeps console pages to MOD and ADMIN. Everyone else is sent
// back to the chat page; MOD cannot see user management.
func (s *Server) adminPageGate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := principal(c)
		if p == nil || !canUseConsole(p.User.Role) {
			return c.Redirect(http.StatusFound, "/")
		}

		if p.User.Role == store.RoleMod && strings.HasPrefix(c.Request().URL.Path, "/admin/users") {
			return c.Redirect(http.StatusFound, "/admin/docs")
		}

		return next(c)
	}
}

func (s *Server) handleAdminIndex(c echo.Context) error {
	if principal(c).User.Role == store.RoleAdmin {
		return c.Redirect(http.StatusFound, "/admin/users")
	}

	return c.Redirect(http.StatusFound, "/admin/docs")
}

func (s *Server) handleAdminPage(title string) echo.HandlerFunc {
	return func(c echo.Context) error {
		role := principal(c).User.Role

		return render(c, adminPageTmpl, map[string]any{
			"Title":   title,
			"Section": strings.ToLower(title),
			"Role":    role,
			"IsAdmin": role == store.RoleAdmin,
		})
	}
}

func (s *Server) handleChatPage(c echo.Context) error {
	data := map[string]any{}

	if p := principal(c); p != nil {
		data["User"] = p.User
		data["Console"] = canUseConsole(p.User.Role)
	}

	return render(c, chatPageTmpl, data)
}

func render(c echo.Context, t *template.Template, data any) error {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return internal("rendering "+t.Name()+" page", err)
	}

	return c.HTML(http.StatusOK, b.String())
}
