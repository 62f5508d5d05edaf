package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/Bastien2203/pi-medias/logger"
	"github.com/Bastien2203/pi-medias/model"
)

type loginResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Authenticate exchanges credentials for a session token. The token is not
// stored anywhere; persisting it is the caller's job.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	const op = "login"

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := c.credentialsRequest(ctx, op, "/login", username, password)
	if err != nil {
		return "", err
	}

	resp, err := c.do(op, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !success(resp) {
		reason := drain(resp.Body)
		logger.Info("[api/login] 登录被拒绝",
			logger.String("username", username),
			logger.Int("status", resp.StatusCode),
			logger.String("reason", reason))
		// the status alone decides, the body is ignored
		return "", &AuthenticationError{StatusCode: resp.StatusCode}
	}

	var result loginResponse
	if err := decodeJSON(op, resp.Body, &result); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", &AuthenticationError{Message: result.Error, StatusCode: resp.StatusCode}
	}
	if result.Token == "" {
		return "", &TransportError{Op: op, Err: errMissingToken}
	}

	logger.Info("[api/login] 登录成功", logger.String("username", username))
	return result.Token, nil
}

// Register creates an account. The service answers rejections in plain
// text; that text becomes the error message.
func (c *Client) Register(ctx context.Context, username, password string) (*model.RegisteredUser, error) {
	const op = "register"

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := c.credentialsRequest(ctx, op, "/register", username, password)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !success(resp) {
		reason := drain(resp.Body)
		if reason == "" {
			reason = "registration failed"
		}
		return nil, &AuthenticationError{Message: reason, StatusCode: resp.StatusCode}
	}

	var user model.RegisteredUser
	if err := decodeJSON(op, resp.Body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) credentialsRequest(ctx context.Context, op, path, username, password string) (*http.Request, error) {
	payload, err := json.Marshal(model.Credentials{Username: username, Password: password})
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req, err := c.newRequest(ctx, op, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
