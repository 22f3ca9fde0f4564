package simplefin

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Veraticus/billfinder/internal/common"
)

// Claim exchanges a one-time setup token for an access URL and returns it as
// a bank token. A setup token can only be claimed once.
func (c *Client) Claim(ctx context.Context, setupToken string) (string, error) {
	claimURL, err := decodeSetupToken(setupToken)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create claim request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to claim access URL: %w", common.ErrSimpleFIN, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read access URL: %w", common.ErrSimpleFIN, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return "", fmt.Errorf("%w: setup token already claimed or invalid", common.ErrInvalidToken)
	default:
		return "", fmt.Errorf("%w: claim failed with status %d", common.ErrSimpleFIN, resp.StatusCode)
	}

	token := TokenPrefix + strings.TrimSpace(string(body))
	if _, err := ParseToken(token); err != nil {
		return "", fmt.Errorf("invalid access URL received: %w", err)
	}

	c.logger.Info("Claimed SimpleFIN access URL")
	return token, nil
}

// decodeSetupToken turns a base64 setup token into its claim URL.
func decodeSetupToken(setupToken string) (string, error) {
	setupToken = strings.TrimSpace(setupToken)

	decoded, err := base64.URLEncoding.DecodeString(setupToken)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(setupToken)
		if err != nil {
			return "", fmt.Errorf("%w: setup token is not base64", common.ErrInvalidToken)
		}
	}

	claimURL := string(decoded)
	if !strings.HasPrefix(claimURL, "https://") && !strings.HasPrefix(claimURL, "http://") {
		return "", fmt.Errorf("%w: setup token does not contain a claim URL", common.ErrInvalidToken)
	}
	return claimURL, nil
}
