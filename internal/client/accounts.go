package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// AccountInformation returns the account resource. An empty accountID uses
// the client's resolved account.
func (c *SignClient) AccountInformation(ctx context.Context, accountID string) (json.RawMessage, error) {
	if accountID == "" {
		path, err := c.accountPath(ctx)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, "getAccount", http.MethodGet, path, requestOpts{})
	}
	return c.do(ctx, "getAccount", http.MethodGet, "/accounts/"+accountID+"/", requestOpts{})
}

// AccountProvisioning returns distributor provisioning information. Requires
// the app token.
func (c *SignClient) AccountProvisioning(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, "getAccountProvisioning", http.MethodGet, "/accounts/provisioning", requestOpts{
		headers: map[string]string{"X-DocuSign-AppToken": c.appToken},
	})
}

// CreateAccount provisions a new account.
func (c *SignClient) CreateAccount(ctx context.Context, account interface{}) (json.RawMessage, error) {
	return c.do(ctx, "createAccount", http.MethodPost, "/accounts", requestOpts{
		body:         account,
		expectStatus: http.StatusCreated,
	})
}

// DeleteAccount closes the account. Returns true when the API confirmed the
// deletion with an empty body.
func (c *SignClient) DeleteAccount(ctx context.Context, accountID string) (bool, error) {
	body, err := c.do(ctx, "deleteAccount", http.MethodDelete, "/accounts/"+accountID, requestOpts{})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(body)) == "", nil
}

// Template returns the template definition.
func (c *SignClient) Template(ctx context.Context, templateID string) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "getTemplate", http.MethodGet, account+"/templates/"+templateID, requestOpts{})
}
