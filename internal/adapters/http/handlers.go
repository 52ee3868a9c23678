package http

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PositionRequest is the body of start and stop requests. Pointers make a
// missing coordinate distinguishable from 0.
type PositionRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

// PointRequest is the body of a track point request.
type PointRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Timestamp string   `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// StopResponse reports whether an active session was stopped.
type StopResponse struct {
	Stopped bool            `json:"stopped"`
	Session *domain.Session `json:"session,omitempty"`
}

// StatusResponse describes the owner's active session, if any.
type StatusResponse struct {
	Active  bool            `json:"active"`
	Session *domain.Session `json:"session,omitempty"`
}

// bind parses and validates a JSON body into dst.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return errors.New(fe.Field() + " is required")
			}
			return errors.New(fe.Field() + " is invalid")
		}
		return err
	}
	return nil
}

// StartSessionHandler opens a session at the posted position.
func StartSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req PositionRequest
		if err := bind(c, &req); err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx := c.UserContext()
		session, err := deps.Sessions.Start(ctx, OwnerFromCtx(ctx), *req.Latitude, *req.Longitude)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// StopSessionHandler completes the active session at the posted position.
func StopSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req PositionRequest
		if err := bind(c, &req); err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx := c.UserContext()
		session, err := deps.Sessions.Stop(ctx, OwnerFromCtx(ctx), *req.Latitude, *req.Longitude)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(StopResponse{Stopped: session != nil, Session: session})
	}
}

// AddPointHandler appends a sample to the active session.
func AddPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req PointRequest
		if err := bind(c, &req); err != nil {
			return errBadRequest(c, err.Error())
		}

		var ts time.Time
		if req.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339Nano, req.Timestamp)
			if err != nil {
				return errBadRequest(c, "timestamp must be RFC 3339")
			}
			ts = parsed
		}

		ctx := c.UserContext()
		recorded, err := deps.Sessions.AddPoint(ctx, OwnerFromCtx(ctx), *req.Latitude, *req.Longitude, ts)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"recorded": recorded})
	}
}

// SessionStatusHandler returns the active session including its raw track.
func SessionStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		session, err := deps.Sessions.GetActive(ctx, OwnerFromCtx(ctx))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(StatusResponse{Active: session != nil, Session: session})
	}
}

// SessionHistoryHandler returns summaries of completed sessions, newest first.
func SessionHistoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		summaries, err := deps.Sessions.History(ctx, OwnerFromCtx(ctx))
		if err != nil {
			return respondError(c, err)
		}

		page, pg := paginate(c, summaries, 20, 100)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// SessionGeoJSONHandler renders a session for map display. With
// ?format=collection the response is a plain GeoJSON FeatureCollection.
func SessionGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		owner, id := OwnerFromCtx(ctx), c.Params("id")

		if c.Query("format") == "collection" {
			fc, err := deps.Sessions.FeatureCollection(ctx, owner, id)
			if err != nil {
				return respondError(c, err)
			}
			data, err := fc.MarshalJSON()
			if err != nil {
				return errInternal(c, "encode geojson")
			}
			c.Set(fiber.HeaderContentType, "application/geo+json")
			return c.Send(data)
		}

		out, err := deps.Sessions.GeoJSON(ctx, owner, id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(out)
	}
}

// SessionFindsHandler lists the finds recorded during a session.
func SessionFindsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		finds, err := deps.Sessions.Finds(ctx, OwnerFromCtx(ctx), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if finds == nil {
			finds = []domain.Find{}
		}
		return c.JSON(finds)
	}
}

// DeleteSessionHandler deletes a session and detaches its finds.
func DeleteSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if err := deps.Sessions.DeleteByID(ctx, OwnerFromCtx(ctx), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PurgeSessionsHandler schedules the removal of all of the owner's sessions.
func PurgeSessionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		id, err := deps.Sessions.SchedulePurge(ctx, OwnerFromCtx(ctx))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"workflow_id": id})
	}
}
