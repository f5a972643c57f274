package dropbox

import "context"

// Account identifies the authenticated Dropbox user.
type Account struct {
	AccountID   string
	Email       string
	DisplayName string
}

type currentAccountResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
}

// CurrentAccount returns the account the credentials belong to.
func (c *Client) CurrentAccount(ctx context.Context) (*Account, error) {
	var resp currentAccountResponse
	if err := c.rpc(ctx, "/users/get_current_account", nil, &resp); err != nil {
		return nil, err
	}

	return &Account{AccountID: resp.AccountID, Email: resp.Email, DisplayName: resp.Name.DisplayName}, nil
}
