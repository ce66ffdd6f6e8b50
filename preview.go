package spacetraveling

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/logger"
	"github.com/eringen/spacetraveling/prismic"
)

const (
	previewSession = "preview_session"
	previewRefKey  = "ref"
)

// previewRef is the preview revision selected for this request, or "".
func previewRef(c echo.Context) string {
	sess, err := session.Get(previewSession, c)
	if err != nil {
		return ""
	}
	ref, _ := sess.Values[previewRefKey].(string)
	return ref
}

// handlePreview enters preview mode: the CMS redirects editors here with a
// preview token and the id of the document they are editing.
func (a *App) handlePreview(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing preview token")
	}

	target := "/"
	if id := c.QueryParam("documentId"); id != "" {
		doc, err := a.Source.GetByID(c.Request().Context(), id, token)
		switch {
		case err == nil:
			target = a.linkResolver(doc)
		case errors.Is(err, prismic.ErrNotFound):
			// Unsaved documents have no uid yet; land on the listing.
		default:
			var re *prismic.RetrievalError
			if errors.As(err, &re) && !re.Temporary() {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid preview token")
			}
			return a.contentError(err)
		}
	}

	sess, err := session.Get(previewSession, c)
	if err != nil {
		return err
	}
	sess.Values[previewRefKey] = token
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	a.Logger.Info("preview started", logger.String("target", target))
	return c.Redirect(http.StatusTemporaryRedirect, target)
}

// handleExitPreview clears preview state and returns to the listing.
func (a *App) handleExitPreview(c echo.Context) error {
	sess, err := session.Get(previewSession, c)
	if err == nil {
		delete(sess.Values, previewRefKey)
		sess.Options.MaxAge = -1
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return err
		}
	}
	return c.Redirect(http.StatusTemporaryRedirect, "/")
}

// linkResolver maps a document to its site path.
func (a *App) linkResolver(doc prismic.RawDocument) string {
	if doc.Type == a.Config.Prismic.DocumentType && doc.UID != "" {
		return PostPath(doc.UID)
	}
	return "/"
}

func (a *App) newSessionStore() *sessions.CookieStore {
	secret := a.Config.SessionSecret
	if secret == "" {
		secret = randomSecret()
		a.Logger.Warn("session_secret not set, using a random one; preview sessions end on restart")
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 12,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
