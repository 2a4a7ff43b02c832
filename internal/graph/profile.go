package graph

import (
	"context"
	"log/slog"
)

type profileJSON struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	UPN         string `json:"userPrincipalName"`
}

type driveJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	Owner     struct {
		User struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"owner"`
	Quota struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"quota"`
}

// Me returns the signed-in user's profile. Accounts without a mailbox
// report their user principal name as Email.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var p profileJSON
	if err := c.getJSON(ctx, "/me", "profile", &p); err != nil {
		return nil, err
	}

	u := &User{ID: p.ID, DisplayName: p.DisplayName, Email: p.Mail}
	if u.Email == "" {
		u.Email = p.UPN
	}

	c.logger.Debug("fetched profile", slog.String("id", u.ID))

	return u, nil
}

// MyDrive returns the signed-in user's default drive with its quota.
func (c *Client) MyDrive(ctx context.Context) (*Drive, error) {
	var d driveJSON
	if err := c.getJSON(ctx, "/me/drive", "drive", &d); err != nil {
		return nil, err
	}

	return &Drive{
		ID:         d.ID,
		Name:       d.Name,
		DriveType:  d.DriveType,
		OwnerName:  d.Owner.User.DisplayName,
		QuotaUsed:  d.Quota.Used,
		QuotaTotal: d.Quota.Total,
	}, nil
}
