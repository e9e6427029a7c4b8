package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"flagclient/models"
	"flagclient/telemetry"
)

// AuthAPI exchanges the api key for a short-lived streaming token.
type AuthAPI struct {
	splits *SplitAPI
}

// NewAuthAPI builds an AuthAPI on its own SplitAPI transport with the given
// api key and metadata, using authURL as the base URL.
func NewAuthAPI(authURL, apikey string, metadata Metadata, logger *logrus.Logger) *AuthAPI {
	return &AuthAPI{splits: NewSplitAPI(authURL, apikey, metadata, logger)}
}

// Authenticate performs the auth handshake. A 401 bumps the auth_rejections
// counter before failing; any other non-2xx fails without the bump.
func (a *AuthAPI) Authenticate(ctx context.Context) (*models.Token, error) {
	resp, err := a.splits.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+a.splits.apikey).
		SetHeader("SplitSDKVersion", a.splits.metadata.SDKVersion).
		SetHeader("SplitSDKMachineName", a.splits.metadata.MachineName).
		SetHeader("SplitSDKMachineIP", a.splits.metadata.InstanceID).
		Get("/v2/auth")
	if err != nil {
		a.splits.logger.Errorf("error performing auth handshake: %v", err)
		return nil, NewError("could not perform authentication", 0, err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		if resp.StatusCode() == http.StatusUnauthorized {
			telemetry.AuthRejections.Inc()
		}
		return nil, NewError("authentication failed", resp.StatusCode(), nil)
	}

	var token models.Token
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return nil, NewError("malformed auth payload", resp.StatusCode(), err)
	}
	if token.PushEnabled && token.Raw != "" {
		if err := decodeTokenClaims(&token); err != nil {
			a.splits.logger.Warnf("could not decode token claims: %v", err)
		}
	}
	telemetry.TokenRefreshes.Inc()
	return &token, nil
}

// decodeTokenClaims extracts channels and expiration from the raw token.
// The token is consumed, not validated, so the signature is not checked.
func decodeTokenClaims(token *models.Token) error {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token.Raw, claims); err != nil {
		return err
	}
	if exp, ok := claims["exp"].(float64); ok {
		token.Exp = int64(exp)
	}
	if capability, ok := claims["x-ably-capability"].(string); ok {
		var channels map[string][]string
		if err := json.Unmarshal([]byte(capability), &channels); err == nil {
			for name := range channels {
				token.Channels = append(token.Channels, name)
			}
		}
	}
	return nil
}
