package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/handler"
	"github.com/dmitrymomot/notifier/pkg/validator"
)

type getRequest struct {
	ID uuid.UUID `path:"id"`
}

func (a *API) getNotification(ctx handler.Context, req getRequest) handler.Response {
	n, err := a.repo.Get(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(n)
}

type cancelRequest struct {
	ID     uuid.UUID `path:"id" json:"-"`
	Reason string    `path:"-" json:"reason"`
}

func (a *API) cancelNotification(ctx handler.Context, req cancelRequest) handler.Response {
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by request"
	}
	if err := validator.Apply(validator.MaxLenString("reason", reason, 255)); err != nil {
		return handler.Fail(err)
	}

	n, err := a.notifications.Cancel(ctx, req.ID, reason)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(n)
}

type listRequest struct {
	UserID  string     `path:"userID" query:"-"`
	Status  string     `path:"-" query:"status"`
	Channel string     `path:"-" query:"channel"`
	From    *time.Time `path:"-" query:"from"`
	To      *time.Time `path:"-" query:"to"`
	Limit   int        `path:"-" query:"limit"`
	Offset  int        `path:"-" query:"offset"`
}

func (r listRequest) filter() (notification.ListFilter, error) {
	err := validator.Apply(
		validator.When(r.Status != "",
			validator.OneOf("status", notification.Status(r.Status), notification.Statuses)),
		validator.When(r.Channel != "",
			validator.OneOf("channel", notification.Channel(r.Channel), notification.Channels)),
		validator.MinNum("limit", r.Limit, 0),
		validator.MinNum("offset", r.Offset, 0),
	)
	if err != nil {
		return notification.ListFilter{}, err
	}
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return notification.ListFilter{}, errInvalidFilter
	}

	return notification.ListFilter{
		UserID:  r.UserID,
		Status:  notification.Status(r.Status),
		Channel: notification.Channel(r.Channel),
		From:    r.From,
		To:      r.To,
		Limit:   r.Limit,
		Offset:  r.Offset,
	}.Normalize(), nil
}

func (a *API) listNotifications(ctx handler.Context, req listRequest) handler.Response {
	filter, err := req.filter()
	if err != nil {
		return handler.Fail(err)
	}

	items, err := a.repo.List(ctx, filter)
	if err != nil {
		return handler.Fail(err)
	}
	if items == nil {
		items = []*notification.Notification{}
	}

	return handler.JSON(items, handler.WithJSONMeta(map[string]any{
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"count":  len(items),
	}))
}
