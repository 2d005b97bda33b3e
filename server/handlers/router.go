package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/JRI98/smartchat/internal/wallet"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

const (
	identityKey = "identity"

	// bodyLimit caps signed request bodies. Messages are at most a few KB.
	bodyLimit = "64K"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpError *echo.HTTPError
	if !errors.As(err, &httpError) {
		httpError = echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)).SetInternal(err)
	}

	var sendError error
	if c.Request().Method == http.MethodHead {
		sendError = c.NoContent(httpError.Code)
	} else {
		sendError = c.String(httpError.Code, fmt.Sprint(httpError.Message))
	}

	if sendError != nil {
		slog.Error("HTTPErrorHandler send error", slog.Any("sendError", sendError), slog.Any("httpError", httpError))
	}
}

// Authenticate checks the wallet signature in the Authorization header and
// stores the signer's identity in the context.
func Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		request := c.Request()

		body, err := io.ReadAll(request.Body)
		if err != nil {
			var httpError *echo.HTTPError
			if errors.As(err, &httpError) {
				return httpError
			}
			return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		request.Body.Close()

		request.Body = io.NopCloser(bytes.NewReader(body))

		signer, err := wallet.Authenticate(request.Header.Get(echo.HeaderAuthorization), request.Method, request.URL.RequestURI(), body)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}

		c.Set(identityKey, signer)

		return next(c)
	}
}

func NewEcho(handler *Handler, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(slogecho.NewWithConfig(logger, slogecho.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithUserAgent:    true,
		WithRequestID:    true,
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			return fmt.Errorf("[PANIC RECOVER] %v\n%s", err, stack)
		},
		DisableErrorHandler: true,
	}))

	e.Use(middleware.RequestID())

	e.Use(middleware.Secure())

	e.Use(middleware.CORS())

	e.GET("/healthz", handler.Health)

	api := e.Group("/api", middleware.BodyLimit(bodyLimit), Authenticate)

	api.POST("/classify", handler.Classify)
	api.GET("/threads", handler.ListThreads)
	api.POST("/threads", handler.CreateThread)
	api.GET("/threads/:address", handler.GetThread)
	api.DELETE("/threads/:address", handler.DeleteThread)
	api.GET("/threads/:address/messages", handler.ListMessages)
	api.POST("/threads/:address/messages", handler.SendMessage)

	return e
}
