package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fnordcredit/fnordcredit/internal/credit"
	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// userRequest is validated once a username of the right type was sent.
type userRequest struct {
	Username string `validate:"required"`
}

func (s *Server) listUsers(c echo.Context) error {
	names, err := s.credit.ListUsernames()
	return s.reply(c, "listUsernames", names, err)
}

func (s *Server) addUser(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	username, err := validUsername(c, body["username"])
	if err != nil {
		return s.reply(c, "addUser", nil, err)
	}
	created, err := s.credit.AddUser(username)
	return s.reply(c, "addUser", created, err)
}

func (s *Server) updateCredit(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	username, err := validUsername(c, body["username"])
	if err != nil {
		return s.reply(c, "userCredits", nil, err)
	}
	rec, err := s.credit.UpdateCredit(credit.Update{
		Username: username,
		Method:   credit.MethodDelta,
		Amount:   body["delta"],
	})
	return s.reply(c, "userCredits", rec, err)
}

func (s *Server) userCredit(c echo.Context) error {
	username, err := validUsername(c, c.Param("name"))
	if err != nil {
		return s.reply(c, "userCredit", nil, err)
	}
	amount, err := s.credit.Credit(username)
	return s.reply(c, "userCredit", amount, err)
}

func (s *Server) health(c echo.Context) error {
	loaded := s.store.Loaded()
	status, code := "ok", http.StatusOK
	if !loaded {
		status, code = "loading", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status": status,
		"loaded": loaded,
		"dirty":  loaded && s.store.Dirty(),
		"state":  s.store.Status().String(),
	})
}

// validUsername leaves type errors to the credit service and rejects an
// empty string through the validator.
func validUsername(c echo.Context, raw any) (any, error) {
	name, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	if err := c.Validate(&userRequest{Username: name}); err != nil {
		return nil, credit.ErrNoUsername
	}
	return name, nil
}

// readBody decodes a JSON object or a form. JSON numbers stay json.Number;
// form values that parse as numbers become float64.
func readBody(c echo.Context) (map[string]any, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		dec := json.NewDecoder(req.Body)
		dec.UseNumber()
		body := map[string]any{}
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body").SetInternal(err)
		}
		return body, nil
	}

	form, err := c.FormParams()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid form body").SetInternal(err)
	}
	body := make(map[string]any, len(form))
	for k, v := range form {
		if len(v) == 0 {
			continue
		}
		if f, err := strconv.ParseFloat(v[0], 64); err == nil && k != "username" {
			body[k] = f
			continue
		}
		body[k] = v[0]
	}
	return body, nil
}

// reply writes data as JSON in a text/plain body, or the error, and logs
// the outcome.
func (s *Server) reply(c echo.Context, op string, data any, err error) error {
	if err != nil {
		status := credit.StatusOf(err)
		s.logger.Info(fmt.Sprintf("[%s] = %d Error", op, status), log.Err(err))
		return err
	}

	b, err := json.Marshal(data)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] = 500 Internal Server Error", op), log.Err(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "unable to jsonify result data")
	}
	s.logger.Info(fmt.Sprintf("[%s] = 200 Ok", op))
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, b)
}

// errorHandler replies "Error: <reason>" as text/plain.
func errorHandler(logger log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := credit.StatusOf(err)
		msg := err.Error()

		var apiErr *credit.APIError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &he):
			code = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		}

		if code == http.StatusInternalServerError {
			logger.Error("Internal server error",
				log.Err(err),
				log.String("path", c.Request().URL.Path))
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.String(code, "Error: "+msg)
		}
		if err != nil {
			logger.Error("Error sending response", log.Err(err))
		}
	}
}
