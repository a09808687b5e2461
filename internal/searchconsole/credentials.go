package searchconsole

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sc "google.golang.org/api/searchconsole/v1"
)

// Credentials builds the client option for a credentials file.
// Service-account keys are used directly. Installed-app client secrets need a
// token file produced by an earlier consent; the consent flow itself is not run here.
func Credentials(ctx context.Context, credentialsFile, tokenFile string) (option.ClientOption, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &AuthenticationError{Message: "credentials file is not valid JSON", Cause: err}
	}

	if probe.Type == "service_account" {
		creds, err := google.CredentialsFromJSON(ctx, data, sc.WebmastersReadonlyScope)
		if err != nil {
			return nil, &AuthenticationError{Message: "invalid service account key", Cause: err}
		}
		return option.WithCredentials(creds), nil
	}

	cfg, err := google.ConfigFromJSON(data, sc.WebmastersReadonlyScope)
	if err != nil {
		return nil, &AuthenticationError{Message: "invalid OAuth client secrets", Cause: err}
	}
	if tokenFile == "" {
		return nil, &AuthenticationError{Message: "OAuth client credentials need a stored token file"}
	}
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, &AuthenticationError{Message: "failed to load stored token", Cause: err}
	}
	return option.WithTokenSource(cfg.TokenSource(ctx, tok)), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &tok, nil
}
