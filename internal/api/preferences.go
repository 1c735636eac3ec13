package api

import (
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/handler"
)

type userRequest struct {
	UserID string `path:"userID"`
}

func (a *API) getPreferences(ctx handler.Context, req userRequest) handler.Response {
	p, err := a.prefs.Get(ctx, req.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(p)
}

type preferencesRequest struct {
	UserID   string `path:"userID" json:"-"`
	Email    bool   `path:"-" json:"email"`
	SMS      bool   `path:"-" json:"sms"`
	WhatsApp bool   `path:"-" json:"whatsapp"`
}

// putPreferences replaces the user's channel preferences.
func (a *API) putPreferences(ctx handler.Context, req preferencesRequest) handler.Response {
	err := a.prefs.Save(ctx, notification.Preferences{
		UserID:   req.UserID,
		Email:    req.Email,
		SMS:      req.SMS,
		WhatsApp: req.WhatsApp,
	})
	if err != nil {
		return handler.Fail(err)
	}

	p, err := a.prefs.Get(ctx, req.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(p)
}

// resetPreferences drops stored preferences; the user falls back to defaults.
func (a *API) resetPreferences(ctx handler.Context, req userRequest) handler.Response {
	if err := a.prefs.Reset(ctx, req.UserID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}
