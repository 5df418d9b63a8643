package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/pkg/models"
)

const shutdownTimeout = 10 * time.Second

func userID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("userID"), 10, 64)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func platformParam(c echo.Context) (models.Platform, bool) {
	return models.ParsePlatform(c.Param("platform"))
}

func (s *Server) getMessages(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}

	var unread *bool
	if raw := c.QueryParam("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid unread filter")
		}
		unread = &v
	}
	var platform *models.Platform
	if raw := c.QueryParam("platform"); raw != "" {
		p, valid := models.ParsePlatform(raw)
		if !valid {
			return fail(c, http.StatusBadRequest, "unknown platform")
		}
		platform = &p
	}

	messages, err := s.inbox.GetConsolidated(c.Request().Context(), uid, unread, platform)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, messages)
}

func (s *Server) getMessage(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	accountIdentifier := c.QueryParam("account")
	if accountIdentifier == "" {
		return fail(c, http.StatusBadRequest, "account query parameter is required")
	}

	msg, err := s.inbox.GetMessage(c.Request().Context(), uid, c.Param("externalID"), accountIdentifier)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, msg)
}

func (s *Server) markRead(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	var payload struct {
		ExternalID string `json:"external_id"`
		Account    string `json:"account"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "unable to parse request")
	}
	if payload.ExternalID == "" || payload.Account == "" {
		return fail(c, http.StatusBadRequest, "external_id and account are required")
	}

	if err := s.inbox.MarkRead(c.Request().Context(), uid, payload.ExternalID, payload.Account); err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, map[string]bool{"read": true})
}

func (s *Server) sendMessage(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	var payload struct {
		Platform string `json:"platform"`
		Account  string `json:"account"` // optional, defaults to the active account
		To       string `json:"to"`
		Subject  string `json:"subject"`
		Body     string `json:"body"`
	}
	multipartSend := strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
	if multipartSend {
		payload.Platform = c.FormValue("platform")
		payload.Account = c.FormValue("account")
		payload.To = c.FormValue("to")
		payload.Subject = c.FormValue("subject")
		payload.Body = c.FormValue("body")
	} else if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "unable to parse request")
	}
	platform, valid := models.ParsePlatform(payload.Platform)
	if !valid {
		return fail(c, http.StatusBadRequest, "unknown platform")
	}

	env := &provider.Envelope{
		To:      payload.To,
		Subject: payload.Subject,
		Body:    payload.Body,
	}
	if multipartSend {
		form, err := c.MultipartForm()
		if err != nil {
			return fail(c, http.StatusBadRequest, "unable to parse request")
		}
		for _, header := range form.File["attachments"] {
			content, err := readUpload(header)
			if err != nil {
				return fail(c, http.StatusBadRequest, "unreadable attachment "+header.Filename)
			}
			env.Attachments = append(env.Attachments, provider.OutgoingAttachment{
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Content:     content,
			})
		}
	}
	if env.To == "" || (env.Body == "" && len(env.Attachments) == 0) {
		return fail(c, http.StatusBadRequest, "to and a body or attachment are required")
	}

	msg, err := s.inbox.Send(c.Request().Context(), uid, platform, payload.Account, env)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, msg)
}

func (s *Server) getAttachment(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	accountIdentifier := c.QueryParam("account")
	if accountIdentifier == "" {
		return fail(c, http.StatusBadRequest, "account query parameter is required")
	}

	att, err := s.inbox.GetAttachment(c.Request().Context(), uid, c.Param("externalID"), accountIdentifier, c.Param("attachmentID"))
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set("Content-Disposition", `attachment; filename="`+att.FileName+`"`)
	return c.Blob(http.StatusOK, contentType, att.Content)
}

func (s *Server) listIntegrations(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	accounts, err := s.accounts.List(c.Request().Context(), uid)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	// Tokens stay server-side
	type integration struct {
		Platform models.Platform `json:"platform"`
		Account  string          `json:"account"`
		IsActive bool            `json:"is_active"`
	}
	out := make([]integration, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, integration{Platform: a.PlatformType, Account: a.AccountIdentifier, IsActive: a.IsActive})
	}
	return ok(c, out)
}

func (s *Server) getAuthorizationURL(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	platform, valid := platformParam(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "unknown platform")
	}

	state := strconv.FormatInt(uid, 10)
	url, err := s.accounts.AuthorizationURL(platform, state)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, map[string]string{"url": url})
}

func (s *Server) exchangeCode(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	platform, valid := platformParam(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "unknown platform")
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&payload); err != nil || payload.Code == "" {
		return fail(c, http.StatusBadRequest, "code is required")
	}

	acct, err := s.accounts.CompleteOAuth(c.Request().Context(), uid, platform, payload.Code)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, map[string]string{"account": acct.AccountIdentifier})
}

func (s *Server) activateAccount(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	platform, valid := platformParam(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "unknown platform")
	}
	var payload struct {
		Account string `json:"account"`
	}
	if err := c.Bind(&payload); err != nil || payload.Account == "" {
		return fail(c, http.StatusBadRequest, "account is required")
	}

	if err := s.accounts.SwitchActive(c.Request().Context(), uid, platform, payload.Account); err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, map[string]bool{"active": true})
}

func (s *Server) disconnectAccount(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	platform, valid := platformParam(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "unknown platform")
	}

	if err := s.accounts.Disconnect(c.Request().Context(), uid, platform, c.Param("accountID")); err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, map[string]bool{"disconnected": true})
}

func (s *Server) connectWhatsApp(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	var payload struct {
		PhoneNumberID string `json:"phone_number_id"`
		PhoneNumber   string `json:"phone_number"`
		AccessToken   string `json:"access_token"`
		BusinessName  string `json:"business_name"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "unable to parse request")
	}

	conn, err := s.accounts.ConnectWhatsApp(c.Request().Context(), uid, payload.PhoneNumberID, payload.PhoneNumber, payload.AccessToken, payload.BusinessName)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, map[string]string{"phone_number": conn.PhoneNumber})
}

func (s *Server) disconnectWhatsApp(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	if err := s.accounts.DisconnectWhatsApp(c.Request().Context(), uid); err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return ok(c, map[string]bool{"disconnected": true})
}
