package server

import (
	"context"

	"github.com/ragdesk/ragdesk/internal/graph"
)

// Drive is the OneDrive surface the admin console reads directly. Every
// call runs with the caller's access token.
type Drive interface {
	ListFolders(ctx context.Context, accessToken, rootID, rootName string) []graph.FolderInfo
	ItemByPath(ctx context.Context, accessToken, path string) (*graph.Item, error)
	Me(ctx context.Context, accessToken string) (*graph.User, error)
	MyDrive(ctx context.Context, accessToken string) (*graph.Drive, error)
}

// GraphDrive adapts a shared graph.Client to per-request tokens.
type GraphDrive struct {
	client *graph.Client
}

var _ Drive = (*GraphDrive)(nil)

// NewGraphDrive wraps client. The client's own token source is unused.
func NewGraphDrive(client *graph.Client) *GraphDrive {
	return &GraphDrive{client: client}
}

func (d *GraphDrive) with(accessToken string) *graph.Client {
	return d.client.WithToken(graph.StaticToken(accessToken))
}

// ListFolders enumerates the folder tree under rootID.
func (d *GraphDrive) ListFolders(ctx context.Context, accessToken, rootID, rootName string) []graph.FolderInfo {
	return d.with(accessToken).ListFolders(ctx, rootID, rootName)
}

// ItemByPath looks up an item relative to the drive root.
func (d *GraphDrive) ItemByPath(ctx context.Context, accessToken, path string) (*graph.Item, error) {
	return d.with(accessToken).ItemByPath(ctx, path)
}

// Me returns the signed-in user's Graph profile.
func (d *GraphDrive) Me(ctx context.Context, accessToken string) (*graph.User, error) {
	return d.with(accessToken).Me(ctx)
}

// MyDrive returns the signed-in user's default drive.
func (d *GraphDrive) MyDrive(ctx context.Context, accessToken string) (*graph.Drive, error) {
	return d.with(accessToken).MyDrive(ctx)
}
