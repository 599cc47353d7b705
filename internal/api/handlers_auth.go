package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/grantmate/internal/auth"
)

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request")
	}

	resp, err := s.auth.Signup(c.Request().Context(), req)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return jsonError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		return jsonError(c, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("signup failed", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Signup failed")
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request")
	}

	resp, err := s.auth.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return jsonError(c, http.StatusUnauthorized, "Invalid credentials")
		}
		s.logger.Error("login failed", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Login failed")
	}
	return c.JSON(http.StatusOK, resp)
}
